package services

import (
	"time"

	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/errorf"
	"bigbrotr.dev/pkg/utils/log"
)

// Initializer is the one-shot seeder: it loads the seed file and registers
// every relay in it. Re-running is harmless, inserts are idempotent.
type Initializer struct {
	Deps
}

// Run seeds the relay table and returns.
func (s *Initializer) Run(c context.T) (err error) {
	if s.Cfg.SeedFile == "" {
		return errorf.E("no seed file configured")
	}
	rs, err := ReadRelayFile(s.Cfg.SeedFile)
	if chk.E(err) {
		return
	}
	if len(rs) == 0 {
		log.W.F("seed file %s holds no usable relay URLs", s.Cfg.SeedFile)
		return
	}
	if err = s.Store.InsertRelayBatch(c, rs, time.Now().Unix()); chk.E(err) {
		return
	}
	log.I.F("seeded %d relays from %s", len(rs), s.Cfg.SeedFile)
	return
}
