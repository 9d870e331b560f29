// Package relaytest is an in-process relay for exercising the client side of
// the wire protocol without a network. It answers REQ from a configurable
// event source, honors per-response caps, and acknowledges EVENT submissions
// through a configurable accept policy.
package relaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/filter"
	"bigbrotr.dev/pkg/utils/context"
)

// Server is the stub relay. Configure before handing its URL to a client.
type Server struct {
	ts *httptest.Server

	// Cap bounds how many events one REQ returns, zero means unlimited.
	// Events are served newest first, the way capped relays do.
	Cap int

	// Accept decides the OK verdict for submissions. Nil accepts everything.
	Accept func(ev *event.E) (accepted bool, reason string)

	mu       sync.Mutex
	events   event.S
	requests []*filter.F
}

// New starts a stub relay holding the given events.
func New(evs event.S) (s *Server) {
	s = &Server{events: append(event.S{}, evs...)}
	s.ts = httptest.NewServer(http.HandlerFunc(s.handle))
	return
}

// URL returns the ws:// address of the stub.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http")
}

// Close shuts the stub down.
func (s *Server) Close() { s.ts.Close() }

// Requests returns the filters of every REQ received, in arrival order.
func (s *Server) Requests() []*filter.F {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*filter.F{}, s.requests...)
}

// Stored returns the events currently held, including accepted submissions.
func (s *Server) Stored() event.S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(event.S{}, s.events...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c := r.Context()
	defer conn.Close(websocket.StatusNormalClosure, "")
	for {
		typ, data, err := conn.Read(c)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var arr []json.RawMessage
		if json.Unmarshal(data, &arr) != nil || len(arr) == 0 {
			continue
		}
		var label string
		if json.Unmarshal(arr[0], &label) != nil {
			continue
		}
		switch label {
		case "REQ":
			if len(arr) < 3 {
				continue
			}
			var subID string
			if json.Unmarshal(arr[1], &subID) != nil {
				continue
			}
			f, ferr := filter.Parse(arr[2])
			if ferr != nil {
				continue
			}
			s.answerReq(c, conn, subID, f)
		case "CLOSE":
			// subscriptions here are one-shot, nothing to tear down
		case "EVENT":
			if len(arr) < 2 {
				continue
			}
			ev, perr := event.Unmarshal(arr[1])
			if perr != nil {
				continue
			}
			s.answerEvent(c, conn, ev)
		}
	}
}

func (s *Server) answerReq(
	c context.T, conn *websocket.Conn, subID string, f *filter.F,
) {
	s.mu.Lock()
	s.requests = append(s.requests, f)
	var matched event.S
	for _, ev := range s.events {
		if f.Match(ev) {
			matched = append(matched, ev)
		}
	}
	s.mu.Unlock()
	sort.Sort(matched)
	limit := len(matched)
	if s.Cap > 0 && s.Cap < limit {
		limit = s.Cap
	}
	if f.Limit != nil && *f.Limit < limit {
		limit = *f.Limit
	}
	for _, ev := range matched[:limit] {
		frame := append([]byte(`["EVENT",`), []byte(`"`+subID+`",`)...)
		frame = ev.Marshal(frame)
		frame = append(frame, ']')
		if conn.Write(c, websocket.MessageText, frame) != nil {
			return
		}
	}
	_ = conn.Write(
		c, websocket.MessageText, []byte(`["EOSE","`+subID+`"]`),
	)
}

func (s *Server) answerEvent(c context.T, conn *websocket.Conn, ev *event.E) {
	accepted, reason := true, ""
	if s.Accept != nil {
		accepted, reason = s.Accept(ev)
	}
	if accepted {
		s.mu.Lock()
		s.events = append(s.events, ev)
		s.mu.Unlock()
	}
	frame := []byte(`["OK","` + ev.ID + `",`)
	if accepted {
		frame = append(frame, `true,`...)
	} else {
		frame = append(frame, `false,`...)
	}
	frame = event.AppendString(frame, reason)
	frame = append(frame, ']')
	_ = conn.Write(c, websocket.MessageText, frame)
}
