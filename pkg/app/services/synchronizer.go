package services

import (
	"time"

	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/fabric"
	"bigbrotr.dev/pkg/interfaces/store"
	"bigbrotr.dev/pkg/metrics"
	"bigbrotr.dev/pkg/sync"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
)

// Synchronizer crawls events. Every interval it takes the relays recently
// verified readable and drains each through the engine, then sweeps events
// that lost their last relay association.
type Synchronizer struct {
	Deps
}

// Run loops until c ends.
func (s *Synchronizer) Run(c context.T) (err error) {
	for {
		if err = s.cycle(c); err != nil && c.Err() != nil {
			return nil
		} else if err != nil {
			log.E.F("synchronizer cycle: %v", err)
		}
		if !sleep(c, s.Cfg.SyncInterval) {
			return nil
		}
	}
}

func (s *Synchronizer) cycle(c context.T) (err error) {
	fresh := time.Now().Add(-s.Cfg.MetadataFreshness).Unix()
	rs, err := s.Store.ListReadableRelays(c, fresh)
	if chk.E(err) {
		return
	}
	if len(rs) == 0 {
		log.D.Ln("synchronizer: no readable relays to crawl")
		return
	}
	log.I.F("synchronizer: crawling %d relays", len(rs))
	fab := fabric.New(s.fabricConfig(), s.Factory, s.crawlTask, s.Tracker)
	if err = fab.Run(c, enqueue(rs)); err != nil {
		return
	}
	deleted, err := s.Store.DeleteOrphanEvents(c)
	if chk.E(err) {
		return
	}
	if deleted > 0 {
		metrics.OrphansDeleted.Add(float64(deleted))
		log.I.F("synchronizer: swept %d orphan events", deleted)
	}
	return
}

func (s *Synchronizer) crawlTask(c context.T, st store.I, r relay.R) (err error) {
	f, err := s.crawlFilter()
	if chk.E(err) {
		return
	}
	eng := sync.New(st, s.Limiter, sync.Options{
		Filter:    f,
		Since:     s.Cfg.Start,
		Until:     s.Cfg.Stop,
		BatchSize: s.Cfg.BatchSize,
		Socks:     s.Socks,
	})
	stats, err := eng.Crawl(c, r)
	metrics.EventsStored.Add(float64(stats.Events))
	metrics.Bisections.Add(float64(stats.Bisections))
	if err != nil {
		metrics.CrawlsTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.CrawlsTotal.WithLabelValues("ok").Inc()
	return
}
