// Package ratelimit is the per-relay token bucket gate. Buckets are created
// lazily per URL and refill continuously; the limiter protects request
// dispatch only, not frames on an already open subscription.
package ratelimit

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"bigbrotr.dev/pkg/utils/context"
)

// Defaults: one request per second with a burst of two.
const (
	DefaultRate  = 1.0
	DefaultBurst = 2
)

// L is a per-URL token bucket map. Bucket creation is lazy and thread-safe;
// the map is sharded, bucket internals carry their own lock.
type L struct {
	buckets *xsync.MapOf[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// New creates a limiter handing out perSecond tokens with the given burst
// capacity per URL. Non-positive arguments fall back to the defaults.
func New(perSecond float64, burst int) (l *L) {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &L{
		buckets: xsync.NewMapOf[string, *rate.Limiter](),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *L) bucket(url string) *rate.Limiter {
	b, _ := l.buckets.LoadOrCompute(
		url, func() *rate.Limiter {
			return rate.NewLimiter(l.limit, l.burst)
		},
	)
	return b
}

// Acquire blocks cooperatively until n tokens are available for url, or the
// context ends.
func (l *L) Acquire(c context.T, url string, n int) (err error) {
	return l.bucket(url).WaitN(c, n)
}

// TryAcquire takes n tokens for url if they are available right now.
func (l *L) TryAcquire(url string, n int) bool {
	return l.bucket(url).AllowN(time.Now(), n)
}

// Tokens reports the current token count for url, for tests and metrics.
func (l *L) Tokens(url string) float64 {
	return l.bucket(url).TokensAt(time.Now())
}
