// Package nip66 measures relay connectivity: whether a relay accepts a
// websocket, answers a read, and accepts a write, each with its round trip
// time. Results feed the monitor's metadata snapshots.
package nip66

import (
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/filter"
	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/encoders/relayinfo"
	"bigbrotr.dev/pkg/interfaces/signer"
	"bigbrotr.dev/pkg/protocol/ws"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
)

// KindRelayDiscovery is the event kind for relay discovery announcements.
const KindRelayDiscovery = 30166

// DefaultStepTimeout bounds each of the three checks independently.
const DefaultStepTimeout = 10 * time.Second

// Prober runs connectivity checks. Keys signs the write-check event; Socks
// routes onion relays and is nil for clearnet-only operation.
type Prober struct {
	Keys        signer.I
	Socks       proxy.ContextDialer
	StepTimeout time.Duration
}

func (p *Prober) timeout() time.Duration {
	if p.StepTimeout > 0 {
		return p.StepTimeout
	}
	return DefaultStepTimeout
}

// Probe checks a relay and returns its connectivity snapshot. The checks are
// ordered: an unopenable relay is neither readable nor writable, and the
// read and write checks reuse the one connection the open check made. doc
// supplies the proof of work target for the write check and may be nil.
// Probe itself only errors on signing failure; network failures are the
// measurement.
func (p *Prober) Probe(
	c context.T, r relay.R, doc *relayinfo.Document,
) (conn *relayinfo.Connectivity, err error) {
	conn = &relayinfo.Connectivity{}
	client := p.open(c, r, conn)
	if client == nil {
		return
	}
	defer client.Close()
	p.read(c, client, conn)
	err = p.write(c, client, r, doc, conn)
	return
}

// open dials the relay, trying the plaintext scheme when a clearnet wss
// handshake fails. Tor relays get the SOCKS dialer.
func (p *Prober) open(c context.T, r relay.R, conn *relayinfo.Connectivity) (client *ws.Client) {
	var socks proxy.ContextDialer
	if r.IsTor() {
		if p.Socks == nil {
			log.D.F("{%s} skipping onion relay, no SOCKS proxy", r.URL)
			return nil
		}
		socks = p.Socks
	}
	for _, url := range dialForms(r) {
		cc, cancel := context.Timeout(c, p.timeout())
		start := time.Now()
		cl, err := ws.Dial(cc, url, socks)
		cancel()
		if err != nil {
			log.T.F("{%s} open check %s: %v", r.URL, url, err)
			continue
		}
		rtt := time.Since(start).Milliseconds()
		conn.Openable = true
		conn.RTTOpen = &rtt
		return cl
	}
	return nil
}

// read opens a single-event subscription and waits for stored data or an
// end of stored events marker. Either one proves the relay answers reads.
func (p *Prober) read(c context.T, client *ws.Client, conn *relayinfo.Connectivity) {
	cc, cancel := context.Timeout(c, p.timeout())
	defer cancel()
	one := 1
	start := time.Now()
	sub, err := client.Subscribe(cc, &filter.F{Limit: &one})
	if chk.D(err) {
		return
	}
	defer sub.Unsub()
	select {
	case <-sub.Events:
	case <-sub.EOSE:
	case <-sub.Closed:
		return
	case <-cc.Done():
		return
	case <-client.Context().Done():
		return
	}
	rtt := time.Since(start).Milliseconds()
	conn.Readable = true
	conn.RTTRead = &rtt
}

// write publishes a relay discovery event addressed to the relay itself,
// ground to the advertised proof of work target, and counts acceptance.
func (p *Prober) write(
	c context.T, client *ws.Client, r relay.R,
	doc *relayinfo.Document, conn *relayinfo.Connectivity,
) (err error) {
	cc, cancel := context.Timeout(c, p.timeout())
	defer cancel()
	ev := &event.E{
		Pubkey:    p.Keys.Pub(),
		CreatedAt: time.Now().Unix(),
		Kind:      KindRelayDiscovery,
		Tags:      [][]string{{"d", r.URL}},
		Content:   "",
	}
	if err = Mine(cc, ev, doc.MinPowDifficulty()); err != nil {
		log.D.F("{%s} write check: %v", r.URL, err)
		return nil
	}
	if err = ev.Sign(p.Keys); chk.E(err) {
		return
	}
	start := time.Now()
	if err = client.Publish(cc, ev); err != nil {
		log.T.F("{%s} write check: %v", r.URL, err)
		return nil
	}
	rtt := time.Since(start).Milliseconds()
	conn.Writable = true
	conn.RTTWrite = &rtt
	return nil
}

// dialForms returns the websocket URLs to attempt, the native scheme first.
// Onion relays get no fallback; downgrading them never helps.
func dialForms(r relay.R) []string {
	if !r.IsTor() && strings.HasPrefix(r.URL, "wss://") {
		return []string{r.URL, "ws://" + strings.TrimPrefix(r.URL, "wss://")}
	}
	return []string{r.URL}
}
