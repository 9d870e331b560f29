// Package config provides the go-simpler.org/env configuration table and the
// helpers for printing it back out as a .env listing.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"bigbrotr.dev/pkg/utils/apputil"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/log"
	"bigbrotr.dev/pkg/utils/lol"
)

// C holds application configuration loaded from environment variables and an
// optional .env file in the config directory. It covers the database, the
// Tor proxy, the service loop cadences, the fabric sizing and the crawl
// window.
type C struct {
	AppName  string `env:"BIGBROTR_APP_NAME" default:"bigbrotr"`
	Config   string `env:"BIGBROTR_CONFIG_DIR" usage:"location of the .env configuration file" default:"~/.config/bigbrotr"`
	LogLevel string `env:"BIGBROTR_LOG_LEVEL" default:"info" usage:"debug level: fatal error warn info debug trace"`

	DBHost           string        `env:"BIGBROTR_DB_HOST" default:"localhost" usage:"postgres host"`
	DBPort           int           `env:"BIGBROTR_DB_PORT" default:"5432" usage:"postgres port"`
	DBUser           string        `env:"BIGBROTR_DB_USER" default:"bigbrotr" usage:"postgres user"`
	DBPassword       string        `env:"BIGBROTR_DB_PASSWORD" usage:"postgres password"`
	DBName           string        `env:"BIGBROTR_DB_NAME" default:"bigbrotr" usage:"postgres database name"`
	DBSSLMode        string        `env:"BIGBROTR_DB_SSLMODE" default:"disable" usage:"postgres sslmode"`
	DBMinConns       int           `env:"BIGBROTR_DB_MIN_CONNS" default:"2" usage:"idle connections held per worker pool"`
	DBMaxConns       int           `env:"BIGBROTR_DB_MAX_CONNS" default:"5" usage:"open connections per worker pool"`
	DBCommandTimeout time.Duration `env:"BIGBROTR_DB_COMMAND_TIMEOUT" default:"30s" usage:"per statement deadline"`

	SocksHost string `env:"BIGBROTR_SOCKS_HOST" usage:"SOCKS5 proxy host for onion relays, empty disables Tor routing"`
	SocksPort int    `env:"BIGBROTR_SOCKS_PORT" default:"9050" usage:"SOCKS5 proxy port"`

	SecretKey    string `env:"BIGBROTR_SECRET_KEY" usage:"hex secret key signing the probe's write check events"`
	SeedFile     string `env:"BIGBROTR_SEED_FILE" usage:"file of relay URLs, one per line, loaded by the initializer"`
	PriorityFile string `env:"BIGBROTR_PRIORITY_FILE" usage:"file of relay URLs crawled by the priority synchronizer"`

	MonitorInterval      time.Duration `env:"BIGBROTR_MONITOR_INTERVAL" default:"1h" usage:"how often relay metadata is refreshed"`
	SyncInterval         time.Duration `env:"BIGBROTR_SYNC_INTERVAL" default:"4h" usage:"how often readable relays are crawled"`
	PrioritySyncInterval time.Duration `env:"BIGBROTR_PRIORITY_SYNC_INTERVAL" default:"1h" usage:"how often priority relays are crawled"`
	MetadataFreshness    time.Duration `env:"BIGBROTR_METADATA_FRESHNESS" default:"24h" usage:"how recent a readable verdict must be for the synchronizer"`

	NumCores        int           `env:"BIGBROTR_NUM_CORES" default:"4" usage:"worker pool width"`
	RequestsPerCore int           `env:"BIGBROTR_REQUESTS_PER_CORE" default:"4" usage:"cooperative tasks per worker"`
	RequestTimeout  time.Duration `env:"BIGBROTR_REQUEST_TIMEOUT" default:"2m" usage:"wall clock bound on one relay crawl or probe"`
	BatchSize       int           `env:"BIGBROTR_BATCH_SIZE" default:"1000" usage:"limit sent on the cap probe request"`

	Start      int64  `env:"BIGBROTR_START_TIMESTAMP" default:"0" usage:"lower bound of the crawl period, unix seconds"`
	Stop       int64  `env:"BIGBROTR_STOP_TIMESTAMP" default:"0" usage:"upper bound of the crawl period, zero means now minus one day"`
	FilterJSON string `env:"BIGBROTR_FILTER_JSON" usage:"filter applied to every crawl, standard filter JSON"`

	Listen string `env:"BIGBROTR_LISTEN" default:"0.0.0.0" usage:"health endpoint listen address"`
	Port   int    `env:"BIGBROTR_PORT" default:"3528" usage:"health endpoint port"`
}

// New loads configuration from the process environment, then overlays the
// .env file in the config directory if one exists, and sets the log level.
func New() (cfg *C, err error) {
	cfg = &C{}
	if err = env.Load(cfg, nil); chk.T(err) {
		return
	}
	if cfg.Config == "" || strings.Contains(cfg.Config, "~") {
		cfg.Config = filepath.Join(xdg.ConfigHome, cfg.AppName)
	}
	envPath := filepath.Join(cfg.Config, ".env")
	if err = apputil.EnsureDir(envPath); chk.E(err) {
		return
	}
	if apputil.FileExists(envPath) {
		var kv map[string]string
		if kv, err = godotenv.Read(envPath); chk.T(err) {
			return
		}
		if err = env.Load(
			cfg, &env.Options{Source: mapSource(kv)},
		); chk.E(err) {
			return
		}
		log.I.F("loaded configuration from %s", envPath)
	}
	lol.SetLogLevel(cfg.LogLevel)
	return
}

// SocksAddr returns the host:port of the SOCKS5 proxy, empty if disabled.
func (cfg *C) SocksAddr() string {
	if cfg.SocksHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", cfg.SocksHost, cfg.SocksPort)
}

type mapSource map[string]string

func (m mapSource) LookupEnv(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// HelpRequested reports whether the first argument asks for usage output.
func HelpRequested() (help bool) {
	if len(os.Args) > 1 {
		switch strings.ToLower(os.Args[1]) {
		case "help", "-h", "--h", "-help", "--help", "?":
			help = true
		}
	}
	return
}

// KV is a key/value pair in the printed environment listing.
type KV struct{ Key, Value string }

// EnvKV flattens a configuration struct into its env representation, one
// pair per tagged field, sorted by key.
func EnvKV(cfg any) (out []KV) {
	t := reflect.TypeOf(cfg)
	v := reflect.ValueOf(cfg)
	for i := 0; i < t.NumField(); i++ {
		k := t.Field(i).Tag.Get("env")
		if k == "" {
			continue
		}
		var val string
		switch value := v.Field(i).Interface().(type) {
		case string:
			val = value
		case int, int64:
			val = fmt.Sprint(value)
		case bool:
			val = fmt.Sprint(value)
		case time.Duration:
			val = value.String()
		case []string:
			val = strings.Join(value, ",")
		}
		out = append(out, KV{Key: k, Value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return
}

// PrintEnv writes the current configuration as a .env listing.
func PrintEnv(cfg *C, printer io.Writer) {
	for _, kv := range EnvKV(*cfg) {
		fmt.Fprintf(printer, "%s=%s\n", kv.Key, kv.Value)
	}
}

// PrintHelp writes the environment variable reference, with defaults and
// usage from the struct tags.
func PrintHelp(cfg *C, printer io.Writer) {
	fmt.Fprintf(
		printer,
		"Environment variables for %s configuration (also read from %s):\n\n",
		cfg.AppName, filepath.Join(cfg.Config, ".env"),
	)
	t := reflect.TypeOf(*cfg)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		k := field.Tag.Get("env")
		if k == "" {
			continue
		}
		fmt.Fprintf(printer, "  %s", k)
		if def := field.Tag.Get("default"); def != "" {
			fmt.Fprintf(printer, " (default %q)", def)
		}
		fmt.Fprintln(printer)
		if usage := field.Tag.Get("usage"); usage != "" {
			fmt.Fprintf(printer, "      %s\n", usage)
		}
	}
}
