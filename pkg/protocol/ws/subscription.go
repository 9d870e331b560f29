package ws

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"bigbrotr.dev/pkg/encoders/envelopes"
	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/filter"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/errorf"
	"bigbrotr.dev/pkg/utils/log"
)

// room for a full capped response without blocking the read loop
const subscriptionBuffer = 512

var subCounter atomic.Int64

// Subscription is one REQ on a Client. Events arrive on Events until EOSE
// fires once, after which stored events are exhausted; the channel keeps
// delivering live events until Unsub or connection loss.
type Subscription struct {
	ID     string
	Filter *filter.F

	Events chan *event.E
	EOSE   chan struct{}
	Closed chan string

	client *Client
	ctx    context.T
	cncl   context.C

	eoseOnce   sync.Once
	closedOnce sync.Once
	unsubOnce  sync.Once
}

// Subscribe sends a REQ with the given filter and registers the inbound
// routing for it. The subscription lives until Unsub, ctx, or the
// connection ends.
func (c *Client) Subscribe(ctx context.T, f *filter.F) (sub *Subscription, err error) {
	if !c.IsConnected() {
		return nil, errorf.D("{%s} subscribe on closed connection", c.URL)
	}
	subCtx, cncl := context.Cause(ctx)
	sub = &Subscription{
		ID:     fmt.Sprintf("bb-%d", subCounter.Inc()),
		Filter: f,
		Events: make(chan *event.E, subscriptionBuffer),
		EOSE:   make(chan struct{}),
		Closed: make(chan string, 1),
		client: c,
		ctx:    subCtx,
		cncl:   cncl,
	}
	c.subs.Store(sub.ID, sub)
	if err = c.Write(envelopes.AppendReq(nil, sub.ID, f)); chk.D(err) {
		c.subs.Delete(sub.ID)
		cncl(err)
		return nil, err
	}
	return
}

// Context is done once the subscription has ended for any reason.
func (s *Subscription) Context() context.T { return s.ctx }

// Unsub sends CLOSE if the connection is still up and tears the
// subscription down. Safe to call more than once.
func (s *Subscription) Unsub() {
	s.unsubOnce.Do(func() {
		s.client.subs.Delete(s.ID)
		if s.client.IsConnected() {
			if err := s.client.Write(
				envelopes.AppendClose(nil, s.ID),
			); err != nil {
				log.T.F("{%s} close %s: %v", s.client.URL, s.ID, err)
			}
		}
		s.cncl(errorf.D("subscription %s ended", s.ID))
	})
}

func (s *Subscription) cancel(reason error) { s.cncl(reason) }

func (s *Subscription) dispatchEvent(ev *event.E) {
	if ev == nil {
		return
	}
	select {
	case s.Events <- ev:
	case <-s.ctx.Done():
	case <-s.client.ctx.Done():
	}
}

func (s *Subscription) dispatchEose() {
	s.eoseOnce.Do(func() { close(s.EOSE) })
}

func (s *Subscription) handleClosed(reason string) {
	s.closedOnce.Do(func() {
		select {
		case s.Closed <- reason:
		default:
		}
		s.client.subs.Delete(s.ID)
		s.cncl(errorf.D("subscription %s closed by relay: %s", s.ID, reason))
	})
}
