package services

import (
	"time"

	"bigbrotr.dev/pkg/fabric"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/errorf"
	"bigbrotr.dev/pkg/utils/log"
)

// PrioritySynchronizer crawls a fixed set of relays from the priority file
// on a tighter cadence, skipping the readable filter entirely. The file is
// re-read every cycle so edits take effect without a restart.
type PrioritySynchronizer struct {
	Synchronizer
}

// Run loops until c ends.
func (s *PrioritySynchronizer) Run(c context.T) (err error) {
	if s.Cfg.PriorityFile == "" {
		return errorf.E("no priority file configured")
	}
	for {
		if err = s.cycle(c); err != nil && c.Err() != nil {
			return nil
		} else if err != nil {
			log.E.F("priority synchronizer cycle: %v", err)
		}
		if !sleep(c, s.Cfg.PrioritySyncInterval) {
			return nil
		}
	}
}

func (s *PrioritySynchronizer) cycle(c context.T) (err error) {
	rs, err := ReadRelayFile(s.Cfg.PriorityFile)
	if chk.E(err) {
		return
	}
	if len(rs) == 0 {
		log.W.F("priority file %s holds no usable relay URLs", s.Cfg.PriorityFile)
		return
	}
	if err = s.Store.InsertRelayBatch(c, rs, time.Now().Unix()); chk.E(err) {
		return
	}
	log.I.F("priority synchronizer: crawling %d relays", len(rs))
	fab := fabric.New(s.fabricConfig(), s.Factory, s.crawlTask, s.Tracker)
	return fab.Run(c, enqueue(rs))
}
