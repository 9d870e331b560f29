// Package database is the production store adapter: Postgres over
// database/sql with lib/pq, pooled connections, stored-procedure call
// shapes, and transient-error retry with exponential backoff.
package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/lib/pq"
	"lukechampine.com/frand"

	"bigbrotr.dev/pkg/interfaces/store"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
)

// Config carries connection and retry parameters for the Postgres store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// Pool bounds. Workers keep between MinConns and MaxConns connections.
	MinConns int
	MaxConns int

	// AcquireTimeout bounds connection acquisition (default 30s);
	// CommandTimeout bounds a single statement.
	AcquireTimeout time.Duration
	CommandTimeout time.Duration

	// RetryBase is the first backoff delay, doubled each attempt up to
	// RetryAttempts retries.
	RetryBase     time.Duration
	RetryAttempts int
}

func (cfg Config) withDefaults() Config {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MinConns < 2 {
		cfg.MinConns = 2
	}
	if cfg.MaxConns < cfg.MinConns {
		cfg.MaxConns = 5
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 4
	}
	return cfg
}

// DSN renders the lib/pq keyword/value connection string.
func (cfg Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		int(cfg.AcquireTimeout.Seconds()),
	)
}

// D is the Postgres store.
type D struct {
	db  *sql.DB
	cfg Config
}

var _ store.I = (*D)(nil)

// Open connects, applies pool bounds, verifies connectivity and runs the
// migrations (schema plus stored procedures).
func Open(c context.T, cfg Config) (d *D, err error) {
	cfg = cfg.withDefaults()
	var db *sql.DB
	if db, err = sql.Open("postgres", cfg.DSN()); chk.E(err) {
		return
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	d = &D{db: db, cfg: cfg}
	if err = d.Ping(c); chk.E(err) {
		_ = db.Close()
		return nil, err
	}
	if err = d.migrate(c); chk.E(err) {
		_ = db.Close()
		return nil, err
	}
	return
}

// Ping verifies connectivity within the acquire timeout.
func (d *D) Ping(c context.T) (err error) {
	cc, cancel := context.Timeout(c, d.cfg.AcquireTimeout)
	defer cancel()
	return d.db.PingContext(cc)
}

// Close releases the pool.
func (d *D) Close() (err error) { return d.db.Close() }

// Transient reports whether err is worth retrying in place: connection loss,
// pool/resource exhaustion, query cancellation and OS-level network errors.
// Syntax, integrity and auth errors are permanent and propagate.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch pe.Code.Class() {
		case "08", // connection exception
			"53", // insufficient resources
			"57": // operator intervention (includes query_canceled)
			return true
		}
	}
	return false
}

// retry runs fn under the command timeout, retrying transient failures with
// exponential backoff and jitter. The caller's context cancels the whole
// loop.
func (d *D) retry(c context.T, op string, fn func(context.T) error) (err error) {
	delay := d.cfg.RetryBase
	for attempt := 0; ; attempt++ {
		cc, cancel := context.Timeout(c, d.cfg.CommandTimeout)
		err = fn(cc)
		cancel()
		if err == nil {
			return
		}
		if c.Err() != nil {
			// the outer context is done; the timeout above was not ours to
			// retry past
			return c.Err()
		}
		if !Transient(err) || attempt >= d.cfg.RetryAttempts {
			return
		}
		jittered := delay + time.Duration(frand.Intn(int(delay/4)+1))
		log.D.F(
			"%s: transient failure (attempt %d/%d), backing off %v: %v",
			op, attempt+1, d.cfg.RetryAttempts, jittered, err,
		)
		select {
		case <-time.After(jittered):
		case <-c.Done():
			return c.Err()
		}
		delay *= 2
	}
}

// inTx runs fn in a single transaction under the retry wrapper.
func (d *D) inTx(c context.T, op string, fn func(context.T, *sql.Tx) error) (err error) {
	return d.retry(
		c, op, func(cc context.T) (err error) {
			var tx *sql.Tx
			if tx, err = d.db.BeginTx(cc, nil); err != nil {
				return
			}
			if err = fn(cc, tx); err != nil {
				_ = tx.Rollback()
				return
			}
			return tx.Commit()
		},
	)
}
