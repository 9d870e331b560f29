// Command bigbrotr is the relay archiving daemon. Subcommands run the seed
// initializer once, one of the service loops, or everything together.
// Configuration is via environment variables or an optional .env file.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"bigbrotr.dev/pkg/app"
	"bigbrotr.dev/pkg/app/config"
	"bigbrotr.dev/pkg/app/services"
	"bigbrotr.dev/pkg/crypto/keys"
	"bigbrotr.dev/pkg/database"
	"bigbrotr.dev/pkg/fabric"
	"bigbrotr.dev/pkg/interfaces/store"
	"bigbrotr.dev/pkg/protocol/ws"
	"bigbrotr.dev/pkg/ratelimit"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
	"bigbrotr.dev/pkg/version"
)

type args struct {
	Init         *struct{} `arg:"subcommand:init" help:"seed the relay table from the seed file and exit"`
	Monitor      *struct{} `arg:"subcommand:monitor" help:"run the metadata monitor loop"`
	Sync         *struct{} `arg:"subcommand:sync" help:"run the event synchronizer loop"`
	PrioritySync *struct{} `arg:"subcommand:prioritysync" help:"run the priority synchronizer loop"`
	All          *struct{} `arg:"subcommand:all" help:"run every service in one process"`
	Env          *struct{} `arg:"subcommand:env" help:"print the resolved configuration as a .env listing"`
}

func (args) Version() string { return "bigbrotr " + version.V }

func main() {
	var a args
	p := arg.MustParse(&a)
	cfg, err := config.New()
	if chk.T(err) {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err)
		os.Exit(1)
	}
	if a.Env != nil {
		config.PrintEnv(cfg, os.Stdout)
		return
	}
	if config.HelpRequested() || p.Subcommand() == nil {
		config.PrintHelp(cfg, os.Stderr)
		p.WriteHelp(os.Stderr)
		return
	}
	log.I.F("starting %s %s", cfg.AppName, version.V)

	c, cancel := signal.NotifyContext(context.Bg(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, cleanup, err := buildDeps(c, cfg)
	if chk.E(err) {
		os.Exit(1)
	}
	defer cleanup()

	switch {
	case a.Init != nil:
		err = (&services.Initializer{Deps: deps}).Run(c)
	case a.Monitor != nil:
		err = runWithHealth(c, cfg, deps, (&services.Monitor{Deps: deps}).Run)
	case a.Sync != nil:
		err = runWithHealth(c, cfg, deps, (&services.Synchronizer{Deps: deps}).Run)
	case a.PrioritySync != nil:
		err = runWithHealth(
			c, cfg, deps,
			(&services.PrioritySynchronizer{
				Synchronizer: services.Synchronizer{Deps: deps},
			}).Run,
		)
	case a.All != nil:
		err = runWithHealth(c, cfg, deps, func(c context.T) error {
			if ierr := (&services.Initializer{Deps: deps}).Run(c); ierr != nil {
				log.W.F("initializer: %v", ierr)
			}
			g, gc := errgroup.WithContext(c)
			g.Go(func() error { return (&services.Monitor{Deps: deps}).Run(gc) })
			g.Go(func() error { return (&services.Synchronizer{Deps: deps}).Run(gc) })
			if cfg.PriorityFile != "" {
				g.Go(func() error {
					return (&services.PrioritySynchronizer{
						Synchronizer: services.Synchronizer{Deps: deps},
					}).Run(gc)
				})
			}
			return g.Wait()
		})
	}
	if err != nil {
		log.F.F("%v", err)
		os.Exit(1)
	}
}

func buildDeps(c context.T, cfg *config.C) (deps services.Deps, cleanup func(), err error) {
	dbCfg := database.Config{
		Host:           cfg.DBHost,
		Port:           cfg.DBPort,
		User:           cfg.DBUser,
		Password:       cfg.DBPassword,
		DBName:         cfg.DBName,
		SSLMode:        cfg.DBSSLMode,
		MinConns:       cfg.DBMinConns,
		MaxConns:       cfg.DBMaxConns,
		CommandTimeout: cfg.DBCommandTimeout,
	}
	db, err := database.Open(c, dbCfg)
	if chk.E(err) {
		return
	}
	cleanup = func() { chk.E(db.Close()) }

	var kp *keys.Keypair
	if cfg.SecretKey != "" {
		if kp, err = keys.FromSecretHex(cfg.SecretKey); chk.E(err) {
			return
		}
	} else {
		kp = keys.Generate()
		log.W.Ln("no secret key configured, probe identity is ephemeral")
	}

	var socks proxy.ContextDialer
	if addr := cfg.SocksAddr(); addr != "" {
		if socks, err = ws.SOCKS5(addr); chk.E(err) {
			return
		}
		log.I.F("routing onion relays through %s", addr)
	}

	deps = services.Deps{
		Cfg:     cfg,
		Store:   db,
		Limiter: ratelimit.New(ratelimit.DefaultRate, ratelimit.DefaultBurst),
		Keys:    kp,
		Socks:   socks,
		Tracker: fabric.NewFailureTracker(100, 0.1),
		Factory: func() (store.I, error) {
			return database.Open(context.Bg(), dbCfg)
		},
	}
	return
}

// runWithHealth runs a service alongside the health endpoint, flipping
// readiness once the store answers.
func runWithHealth(
	c context.T, cfg *config.C, deps services.Deps, run func(context.T) error,
) (err error) {
	h := app.NewHealth(fmt.Sprintf("%s:%d", cfg.Listen, cfg.Port))
	g, gc := errgroup.WithContext(c)
	g.Go(func() error { return h.Serve(gc) })
	g.Go(func() error {
		if perr := deps.Store.Ping(gc); chk.E(perr) {
			return perr
		}
		h.SetReady(true)
		return run(gc)
	})
	return g.Wait()
}
