package services

import (
	"time"

	"golang.org/x/net/proxy"

	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/encoders/relayinfo"
	"bigbrotr.dev/pkg/fabric"
	"bigbrotr.dev/pkg/interfaces/store"
	"bigbrotr.dev/pkg/metrics"
	"bigbrotr.dev/pkg/protocol/nip11"
	"bigbrotr.dev/pkg/protocol/nip66"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
)

// Monitor refreshes relay metadata. Every interval it finds relays whose
// newest snapshot has aged out, probes each over HTTP and websocket, and
// stores the resulting snapshot.
type Monitor struct {
	Deps
}

// Run loops until c ends.
func (s *Monitor) Run(c context.T) (err error) {
	for {
		if err = s.cycle(c); err != nil && c.Err() != nil {
			return nil
		} else if err != nil {
			log.E.F("monitor cycle: %v", err)
		}
		if !sleep(c, s.Cfg.MonitorInterval) {
			return nil
		}
	}
}

func (s *Monitor) cycle(c context.T) (err error) {
	cutoff := time.Now().Add(-s.Cfg.MonitorInterval).Unix()
	rs, err := s.Store.ListRelaysNeedingMetadata(c, cutoff)
	if chk.E(err) {
		return
	}
	if len(rs) == 0 {
		log.D.Ln("monitor: all relay metadata fresh")
		return
	}
	log.I.F("monitor: probing %d relays", len(rs))
	fab := fabric.New(s.fabricConfig(), s.Factory, s.probeTask, s.Tracker)
	return fab.Run(c, enqueue(rs))
}

// probeTask measures one relay and stores its snapshot. An unreachable
// relay still produces a snapshot, all checks false, so staleness queries
// see it was tried.
func (s *Monitor) probeTask(c context.T, st store.I, r relay.R) (err error) {
	if err = s.Limiter.Acquire(c, r.URL, 1); err != nil {
		return
	}
	var socks proxy.ContextDialer
	if r.IsTor() {
		if s.Socks == nil {
			log.D.F("{%s} skipping onion relay, no SOCKS proxy", r.URL)
			return nil
		}
		socks = s.Socks
	}
	doc, derr := nip11.Fetch(c, r, socks)
	if derr != nil {
		log.T.F("%v", derr)
	}
	prober := &nip66.Prober{Keys: s.Keys, Socks: s.Socks}
	conn, err := prober.Probe(c, r, doc)
	if err != nil {
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		return
	}
	meta := &relayinfo.T{
		Relay:       r,
		GeneratedAt: time.Now().Unix(),
		NIP11:       doc,
		NIP66:       conn,
	}
	if err = st.InsertRelayMetadata(c, meta); chk.E(err) {
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		return
	}
	outcome := "unreachable"
	if conn.Openable {
		outcome = "ok"
	}
	metrics.ProbesTotal.WithLabelValues(outcome).Inc()
	return
}
