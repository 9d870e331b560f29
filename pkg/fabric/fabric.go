package fabric

import (
	"time"

	"golang.org/x/sync/errgroup"

	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/interfaces/store"
	"bigbrotr.dev/pkg/metrics"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
)

// Task processes one relay using the store its worker owns.
type Task func(c context.T, st store.I, r relay.R) error

// StoreFactory opens a store for one worker. Each worker gets its own so no
// pool is shared across workers.
type StoreFactory func() (store.I, error)

// Config sizes the fabric. Workers is the pool width, TasksPerWorker the
// cooperative fan-out inside each worker sharing its store. RelayTimeout
// bounds one task invocation; in-flight work survives shutdown for twice
// that before being cut off.
type Config struct {
	Workers        int
	TasksPerWorker int
	RelayTimeout   time.Duration
	GetTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.TasksPerWorker <= 0 {
		c.TasksPerWorker = 1
	}
	if c.RelayTimeout <= 0 {
		c.RelayTimeout = 2 * time.Minute
	}
	if c.GetTimeout <= 0 {
		c.GetTimeout = DefaultGetTimeout
	}
	return c
}

// F drains a relay queue through a pool of workers. Each relay is consumed
// by exactly one task; a task failure marks that relay failed and the pool
// moves on.
type F struct {
	cfg     Config
	stores  StoreFactory
	task    Task
	tracker *FailureTracker
}

// New builds a fabric. tracker may be nil to disable failure-rate alerts.
func New(cfg Config, factory StoreFactory, task Task, tracker *FailureTracker) *F {
	if tracker == nil {
		tracker = NewFailureTracker(0, 0)
	}
	return &F{cfg: cfg.withDefaults(), stores: factory, task: task, tracker: tracker}
}

// Run processes the queue until it is drained or c is canceled. On cancel,
// workers stop taking new relays; relays already in flight get a grace of
// twice the relay timeout, then their contexts are cut. Run returns once
// every worker has exited.
func (f *F) Run(c context.T, q *Queue[relay.R]) (err error) {
	grace, graceCancel := context.Cancel(context.Bg())
	defer graceCancel()
	go func() {
		select {
		case <-c.Done():
		case <-grace.Done():
			return
		}
		timer := time.NewTimer(2 * f.cfg.RelayTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			graceCancel()
		case <-grace.Done():
		}
	}()

	g := &errgroup.Group{}
	for w := 0; w < f.cfg.Workers; w++ {
		g.Go(func() (err error) {
			st, err := f.stores()
			if chk.E(err) {
				return
			}
			defer st.Close()
			tg := &errgroup.Group{}
			for t := 0; t < f.cfg.TasksPerWorker; t++ {
				tg.Go(func() error {
					f.taskLoop(c, grace, st, q)
					return nil
				})
			}
			return tg.Wait()
		})
	}
	return g.Wait()
}

func (f *F) taskLoop(c, grace context.T, st store.I, q *Queue[relay.R]) {
	for {
		if c.Err() != nil {
			return
		}
		r, ok := q.Get(f.cfg.GetTimeout)
		if !ok {
			return
		}
		cc, cancel := context.Timeout(grace, f.cfg.RelayTimeout)
		err := f.task(cc, st, r)
		cancel()
		metrics.FailureRate.Set(f.tracker.Record(err != nil))
		if err != nil {
			log.D.F("{%s} task failed: %v", r.URL, err)
		}
	}
}
