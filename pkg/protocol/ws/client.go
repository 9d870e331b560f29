// Package ws is the outbound relay client: one websocket connection, a
// write queue, and a read loop that dispatches inbound frames to
// subscriptions and publish callbacks.
package ws

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/net/proxy"

	"bigbrotr.dev/pkg/encoders/envelopes"
	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/errorf"
	"bigbrotr.dev/pkg/utils/log"
)

// frames larger than the coder default are routine on busy relays
const readLimit = 16 << 20

// DefaultDialTimeout applies when the dial context has no deadline.
const DefaultDialTimeout = 7 * time.Second

// Client is a connection to one relay. It is exclusively owned by the task
// that dialed it; subscriptions multiplex over it but the Client itself is
// never shared across relays.
type Client struct {
	URL string

	conn   *websocket.Conn
	ctx    context.T // canceled when the connection closes
	cancel context.C

	subs        *xsync.MapOf[string, *Subscription]
	okCallbacks *xsync.MapOf[string, func(accepted bool, reason string)]

	writeMu sync.Mutex

	noticeHandler func(string)

	connErr   error
	connErrMu sync.Mutex
}

// Option mutates a Client before it connects.
type Option func(*Client)

// WithNoticeHandler replaces the default NOTICE logging.
func WithNoticeHandler(fn func(string)) Option {
	return func(c *Client) { c.noticeHandler = fn }
}

// Dial opens a websocket to url. A Tor relay is reached by passing a SOCKS5
// dialer; nil means a direct connection. If ctx has no deadline the dial is
// bounded by DefaultDialTimeout. The connection then lives until Close.
func Dial(
	ctx context.T, url string, socks proxy.ContextDialer, opts ...Option,
) (c *Client, err error) {
	connCtx, cancel := context.Cause(context.Bg())
	c = &Client{
		URL:         url,
		ctx:         connCtx,
		cancel:      cancel,
		subs:        xsync.NewMapOf[string, *Subscription](),
		okCallbacks: xsync.NewMapOf[string, func(bool, string)](),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := ctx.Deadline(); !ok {
		var done context.F
		ctx, done = context.Timeout(ctx, DefaultDialTimeout)
		defer done()
	}
	hc := http.DefaultClient
	if socks != nil {
		hc = &http.Client{
			Transport: &http.Transport{
				DialContext: socks.DialContext,
				// proxied lookups must happen at the proxy, not locally
				Proxy: nil,
			},
		}
	}
	var conn *websocket.Conn
	if conn, _, err = websocket.Dial(
		ctx, url, &websocket.DialOptions{HTTPClient: hc},
	); err != nil {
		cancel(err)
		return nil, errorf.D("dial %s: %v", url, err)
	}
	conn.SetReadLimit(readLimit)
	c.conn = conn
	go c.readLoop()
	return
}

// SOCKS5 builds a context-aware SOCKS5 dialer for the given host:port.
func SOCKS5(addr string) (d proxy.ContextDialer, err error) {
	base, err := proxy.SOCKS5("tcp", addr, nil, &net.Dialer{})
	if chk.E(err) {
		return
	}
	cd, ok := base.(proxy.ContextDialer)
	if !ok {
		return nil, errorf.E("socks5 dialer is not context-aware")
	}
	return cd, nil
}

// Context is done when the connection has closed.
func (c *Client) Context() context.T { return c.ctx }

// IsConnected reports whether the connection is still live.
func (c *Client) IsConnected() bool { return c.ctx.Err() == nil }

// Err returns the error that closed the connection, if any.
func (c *Client) Err() error {
	c.connErrMu.Lock()
	defer c.connErrMu.Unlock()
	return c.connErr
}

// Write sends one text frame. Writes are serialized; the connection context
// bounds the send.
func (c *Client) Write(msg []byte) (err error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.IsConnected() {
		return errorf.D("{%s} connection closed", c.URL)
	}
	log.T.C(func() string { return "{" + c.URL + "} sending " + string(msg) })
	return c.conn.Write(c.ctx, websocket.MessageText, msg)
}

func (c *Client) readLoop() {
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.connErrMu.Lock()
			c.connErr = err
			c.connErrMu.Unlock()
			c.close(err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		env, err := envelopes.Parse(data)
		if err != nil {
			log.T.C(func() string {
				return "{" + c.URL + "} unparseable frame: " + string(data)
			})
			continue
		}
		switch env.Label {
		case envelopes.LNotice:
			if c.noticeHandler != nil {
				c.noticeHandler(env.Notice)
			} else {
				log.D.F("{%s} NOTICE: %s", c.URL, env.Notice)
			}
		case envelopes.LEvent:
			sub, ok := c.subs.Load(env.SubID)
			if !ok {
				log.T.F("{%s} event for unknown subscription %q", c.URL, env.SubID)
				continue
			}
			sub.dispatchEvent(env.Event)
		case envelopes.LEose:
			if sub, ok := c.subs.Load(env.SubID); ok {
				sub.dispatchEose()
			}
		case envelopes.LClosed:
			if sub, ok := c.subs.Load(env.SubID); ok {
				sub.handleClosed(env.Reason)
			}
		case envelopes.LOK:
			if cb, ok := c.okCallbacks.Load(env.EventID); ok {
				cb(env.Accepted, env.Reason)
			} else {
				log.T.F("{%s} unexpected OK for %s", c.URL, env.EventID)
			}
		}
	}
}

// Publish sends an EVENT submission and waits for the matching OK. The
// returned error is nil only for an accepting OK; a rejecting OK reports its
// reason. If ctx has no deadline one of DefaultDialTimeout is imposed.
func (c *Client) Publish(ctx context.T, ev *event.E) (err error) {
	var cancel context.F
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.Timeout(ctx, DefaultDialTimeout)
	} else {
		ctx, cancel = context.Cancel(ctx)
	}
	defer cancel()
	// the verdict crosses from the read loop over a buffered channel so the
	// deadline path never races the callback
	verdict := make(chan okVerdict, 1)
	c.okCallbacks.Store(
		ev.ID, func(accepted bool, reason string) {
			select {
			case verdict <- okVerdict{accepted: accepted, reason: reason}:
			default:
			}
		},
	)
	defer c.okCallbacks.Delete(ev.ID)
	if werr := c.Write(envelopes.AppendEventSubmission(nil, ev)); werr != nil {
		return werr
	}
	select {
	case v := <-verdict:
		if !v.accepted {
			return errorf.D("{%s} event rejected: %s", c.URL, v.reason)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errorf.D("{%s} connection lost awaiting OK", c.URL)
	}
}

type okVerdict struct {
	accepted bool
	reason   string
}

// Close shuts the connection down and unblocks every subscription.
func (c *Client) Close() (err error) {
	return c.close(errorf.D("{%s} client closed", c.URL))
}

func (c *Client) close(reason error) (err error) {
	c.cancel(reason)
	c.subs.Range(func(_ string, sub *Subscription) bool {
		sub.cancel(reason)
		return true
	})
	if c.conn != nil {
		err = c.conn.Close(websocket.StatusNormalClosure, "")
	}
	return
}
