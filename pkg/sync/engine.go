// Package sync is the event synchronization engine: an adaptive time-range
// crawler that drains one relay of every event matching a filter within a
// period, working around per-response caps by bisecting windows, and resumes
// past previous progress via the store watermark.
package sync

import (
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/filter"
	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/interfaces/store"
	"bigbrotr.dev/pkg/protocol/ws"
	"bigbrotr.dev/pkg/ratelimit"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/errorf"
	"bigbrotr.dev/pkg/utils/log"
)

const (
	capMin        = 1
	capMax        = 2000
	capDefault    = 500
	capMarginBig  = 50
	capMarginWide = 100
	capMarginSml  = 5

	stackBound = 1000

	// DefaultBatchSize is the limit sent on the cap probe request.
	DefaultBatchSize = 1000
	// DefaultReceiveTimeout bounds the wait for any single inbound frame.
	DefaultReceiveTimeout = 15 * time.Second
)

// Options configures a crawl. Since and Until bound the period; a zero Until
// means now minus one day. Filter may be nil for everything.
type Options struct {
	Filter         *filter.F
	Since          int64
	Until          int64
	BatchSize      int
	ReceiveTimeout time.Duration
	Socks          proxy.ContextDialer
}

func (o *Options) withDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = DefaultReceiveTimeout
	}
}

// Stats summarizes one crawl for logging and metrics.
type Stats struct {
	Events     int
	Windows    int
	Bisections int
	Cap        int
}

// Engine crawls relays one at a time. It is safe for sequential reuse across
// relays but not for concurrent Crawl calls; the fabric gives each worker
// its own Engine.
type Engine struct {
	store   store.I
	limiter *ratelimit.L
	opts    Options
}

// New creates an engine over a store and a shared request rate limiter.
func New(st store.I, lim *ratelimit.L, opts Options) *Engine {
	opts.withDefaults()
	return &Engine{store: st, limiter: lim, opts: opts}
}

// Crawl drains one relay. Every event the relay holds for the filter within
// the period reaches the store exactly once per relay; a previous crawl's
// high-water mark is skipped. A relay refusing or dropping the connection
// aborts that relay only, the next cycle retries it.
func (e *Engine) Crawl(c context.T, r relay.R) (stats Stats, err error) {
	since, until0, err := e.bounds(c, r)
	if err != nil {
		return
	}
	if since > until0 {
		log.D.F("{%s} nothing to crawl, watermark %d past %d", r.URL, since, until0)
		return
	}
	client, err := e.dial(c, r)
	if err != nil {
		return
	}
	defer client.Close()

	capL, empty, err := e.probeCap(c, client, r, since, until0)
	if err != nil {
		return
	}
	stats.Cap = capL
	if empty {
		log.D.F("{%s} empty range [%d, %d]", r.URL, since, until0)
		return
	}

	stack := newUntilStack(until0, stackBound)
	for {
		until, ok := stack.pop()
		if !ok {
			break
		}
		if until < since {
			continue
		}
		for {
			if err = e.limiter.Acquire(c, r.URL, 1); err != nil {
				return
			}
			var buf event.S
			var capped bool
			if buf, capped, err = e.collect(c, client, r, since, until, capL); err != nil {
				return
			}
			if capped && since < until {
				stack.push(until)
				if n := stack.evicted; n > 0 {
					stack.evicted = 0
					log.W.F(
						"{%s} window stack overflow, dropping far tail above %d",
						r.URL, until,
					)
				}
				until = since + (until-since)/2
				stats.Bisections++
				continue
			}
			if len(buf) > 0 {
				if err = e.store.InsertEventBatch(c, buf, r, time.Now().Unix()); chk.E(err) {
					return
				}
				stats.Events += len(buf)
			}
			stats.Windows++
			since = until + 1
			break
		}
	}
	log.I.F(
		"{%s} crawl done: %d events, %d windows, %d bisections, cap %d",
		r.URL, stats.Events, stats.Windows, stats.Bisections, stats.Cap,
	)
	return
}

// bounds resolves the crawl period, resuming after the stored watermark.
func (e *Engine) bounds(c context.T, r relay.R) (since, until int64, err error) {
	since = e.opts.Since
	if mark, merr := e.store.MaxSeenAt(c, r.URL); !chk.E(merr) && mark != nil {
		if *mark+1 > since {
			since = *mark + 1
		}
	} else if merr != nil {
		return 0, 0, merr
	}
	until = e.opts.Until
	if until == 0 {
		until = time.Now().Add(-24 * time.Hour).Unix()
	}
	return
}

func (e *Engine) dial(c context.T, r relay.R) (client *ws.Client, err error) {
	var socks proxy.ContextDialer
	if r.IsTor() {
		if e.opts.Socks == nil {
			return nil, errorf.W("{%s} onion relay needs a SOCKS proxy", r.URL)
		}
		socks = e.opts.Socks
	}
	urls := []string{r.URL}
	if !r.IsTor() && strings.HasPrefix(r.URL, "wss://") {
		urls = append(urls, "ws://"+strings.TrimPrefix(r.URL, "wss://"))
	}
	for _, url := range urls {
		if client, err = ws.Dial(c, url, socks); err == nil {
			return
		}
	}
	return nil, errorf.D("{%s} unreachable: %v", r.URL, err)
}

// probeCap estimates the relay's per-response cap. The first request counts
// a full window; the second asks for anything older than the first window's
// earliest event. Any answer there proves the first count was a cap rather
// than the relay running dry.
func (e *Engine) probeCap(
	c context.T, client *ws.Client, r relay.R, since, until int64,
) (capL int, empty bool, err error) {
	f := e.window(since, until)
	f.Limit = &e.opts.BatchSize
	count, minCreated, err := e.count(c, client, r, f)
	if err != nil {
		log.W.F("{%s} cap probe failed, defaulting to %d: %v", r.URL, capDefault, err)
		return capDefault, false, nil
	}
	if count == 0 {
		return capDefault, true, nil
	}
	secondUntil := minCreated - 1
	if until < secondUntil {
		secondUntil = until
	}
	if secondUntil >= since {
		f2 := e.window(since, secondUntil)
		f2.Limit = &e.opts.BatchSize
		older, _, perr := e.count(c, client, r, f2)
		if perr != nil {
			log.W.F("{%s} second probe window failed: %v", r.URL, perr)
		} else if older == 0 {
			log.D.F("{%s} sparse below %d, cap %d is a lower bound", r.URL, minCreated, count)
		}
	}
	capL = count
	if capL < capMin {
		capL = capMin
	}
	if capL > capMax {
		capL = capMax
	}
	if capL >= capMarginWide {
		capL -= capMarginBig
	} else if capL > capMarginSml {
		capL -= capMarginSml
	}
	return
}

// count drains one probe subscription to EOSE, tracking the earliest
// created_at seen. Probe events are not persisted; the bisection pass
// re-fetches them so every event flows through exactly one window. Events
// already queued when EOSE fires still belong to the response and are
// drained before the tally is returned.
func (e *Engine) count(
	c context.T, client *ws.Client, r relay.R, f *filter.F,
) (n int, minCreated int64, err error) {
	sub, err := client.Subscribe(c, f)
	if err != nil {
		return
	}
	defer sub.Unsub()
	tally := func(ev *event.E) {
		n++
		if minCreated == 0 || ev.CreatedAt < minCreated {
			minCreated = ev.CreatedAt
		}
	}
	for {
		timer := time.NewTimer(e.opts.ReceiveTimeout)
		select {
		case ev := <-sub.Events:
			timer.Stop()
			tally(ev)
		case <-sub.EOSE:
			timer.Stop()
			for {
				select {
				case ev := <-sub.Events:
					tally(ev)
				default:
					return
				}
			}
		case reason := <-sub.Closed:
			timer.Stop()
			return 0, 0, errorf.W("{%s} probe refused: %s", r.URL, reason)
		case <-timer.C:
			return 0, 0, errorf.W("{%s} probe receive timeout", r.URL)
		case <-c.Done():
			timer.Stop()
			return 0, 0, c.Err()
		case <-client.Context().Done():
			timer.Stop()
			return 0, 0, errorf.W("{%s} connection lost during probe", r.URL)
		}
	}
}

// collect gathers one window, stopping at EOSE or when the buffer reaches
// the cap. The cap stop only applies while since < until: a single-second
// window cannot be bisected, so it must drain to EOSE no matter how dense it
// is. Events failing the id or signature check are dropped with a warning;
// events outside the window are dropped silently, their own window will
// carry them. Events already queued when EOSE fires are drained before
// returning.
func (e *Engine) collect(
	c context.T, client *ws.Client, r relay.R, since, until int64, capL int,
) (buf event.S, capped bool, err error) {
	sub, err := client.Subscribe(c, e.window(since, until))
	if err != nil {
		return
	}
	defer sub.Unsub()
	seen := 0
	take := func(ev *event.E) {
		seen++
		if ev.CreatedAt < since || ev.CreatedAt > until {
			return
		}
		if valid, verr := ev.Verify(); !valid || verr != nil {
			log.W.F("{%s} dropping event %s: bad id or signature", r.URL, ev.ID)
			return
		}
		buf = append(buf, ev)
	}
	for {
		timer := time.NewTimer(e.opts.ReceiveTimeout)
		select {
		case ev := <-sub.Events:
			timer.Stop()
			take(ev)
			if seen >= capL && since < until {
				return buf, true, nil
			}
		case <-sub.EOSE:
			timer.Stop()
			for {
				select {
				case ev := <-sub.Events:
					take(ev)
					if seen >= capL && since < until {
						return buf, true, nil
					}
				default:
					return
				}
			}
		case reason := <-sub.Closed:
			timer.Stop()
			return nil, false, errorf.W("{%s} subscription refused: %s", r.URL, reason)
		case <-timer.C:
			return nil, false, errorf.W("{%s} receive timeout in window [%d, %d]", r.URL, since, until)
		case <-c.Done():
			timer.Stop()
			return nil, false, c.Err()
		case <-client.Context().Done():
			timer.Stop()
			return nil, false, errorf.W("{%s} connection lost mid-window", r.URL)
		}
	}
}

func (e *Engine) window(since, until int64) (f *filter.F) {
	if e.opts.Filter != nil {
		f = e.opts.Filter.Clone()
	} else {
		f = &filter.F{}
	}
	s, u := since, until
	f.Since, f.Until = &s, &u
	return
}
