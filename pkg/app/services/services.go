// Package services holds the four long-running loops: the one-shot
// initializer that seeds the relay table, the monitor that refreshes relay
// metadata, and the two synchronizers that crawl events. Each loop wakes on
// its interval, enumerates work, runs it through the fabric, and sleeps
// interruptibly.
package services

import (
	"bufio"
	"os"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"bigbrotr.dev/pkg/app/config"
	"bigbrotr.dev/pkg/encoders/filter"
	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/fabric"
	"bigbrotr.dev/pkg/interfaces/signer"
	"bigbrotr.dev/pkg/interfaces/store"
	"bigbrotr.dev/pkg/ratelimit"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
)

// Deps is everything a service needs. Store is the service's own handle for
// enumeration queries; Factory builds per-worker stores for the fabric.
type Deps struct {
	Cfg     *config.C
	Store   store.I
	Factory fabric.StoreFactory
	Limiter *ratelimit.L
	Keys    signer.I
	Socks   proxy.ContextDialer
	Tracker *fabric.FailureTracker
}

func (d Deps) fabricConfig() fabric.Config {
	return fabric.Config{
		Workers:        d.Cfg.NumCores,
		TasksPerWorker: d.Cfg.RequestsPerCore,
		RelayTimeout:   d.Cfg.RequestTimeout,
	}
}

// crawlFilter parses the configured filter JSON, nil when unset.
func (d Deps) crawlFilter() (f *filter.F, err error) {
	if d.Cfg.FilterJSON == "" {
		return nil, nil
	}
	return filter.Parse([]byte(d.Cfg.FilterJSON))
}

// ReadRelayFile loads relay URLs from a file, one per line. Blank lines and
// '#' comments are skipped; lines that do not parse as relay URLs are logged
// and skipped rather than failing the load.
func ReadRelayFile(path string) (rs []relay.R, err error) {
	f, err := os.Open(path)
	if chk.E(err) {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, rerr := relay.New(line)
		if rerr != nil {
			log.W.F("skipping %q: %v", line, rerr)
			continue
		}
		rs = append(rs, r)
	}
	err = scanner.Err()
	return
}

// sleep waits d or until c ends, reporting false when interrupted.
func sleep(c context.T, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.Done():
		return false
	}
}

func enqueue(rs []relay.R) (q *fabric.Queue[relay.R]) {
	q = fabric.NewQueue[relay.R](0)
	for _, r := range rs {
		q.Put(r)
	}
	q.Close()
	return
}
