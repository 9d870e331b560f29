// Package app wires the long-running pieces together: the health and
// metrics endpoint and the service loops under pkg/app/services.
package app

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/atomic"

	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
	"bigbrotr.dev/pkg/version"
)

// Health serves liveness, readiness and prometheus metrics. Readiness flips
// on once the store answers a ping and the probe keypair has parsed, and
// back off during shutdown.
type Health struct {
	ready  atomic.Bool
	server *http.Server
}

// NewHealth builds the endpoint on addr (host:port).
func NewHealth(addr string) (h *Health) {
	h = &Health{}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "ok %s\n", version.V)
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !h.ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ready")
	})
	r.Handle("/metrics", promhttp.Handler())
	h.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return
}

// SetReady flips the readiness verdict.
func (h *Health) SetReady(ready bool) { h.ready.Store(ready) }

// Serve listens until c is canceled, then shuts the listener down.
func (h *Health) Serve(c context.T) (err error) {
	ln, err := net.Listen("tcp", h.server.Addr)
	if chk.E(err) {
		return
	}
	log.I.F("health endpoint listening on %s", h.server.Addr)
	go func() {
		<-c.Done()
		h.ready.Store(false)
		cc, cancel := context.Timeout(context.Bg(), 5*time.Second)
		defer cancel()
		chk.E(h.server.Shutdown(cc))
	}()
	if err = h.server.Serve(ln); err == http.ErrServerClosed {
		err = nil
	}
	return
}
