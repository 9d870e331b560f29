package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-simpler.org/env"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &C{}
	require.NoError(t, env.Load(cfg, &env.Options{Source: mapSource{}}))
	assert.Equal(t, "bigbrotr", cfg.AppName)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, 2, cfg.DBMinConns)
	assert.Equal(t, 5, cfg.DBMaxConns)
	assert.Equal(t, time.Hour, cfg.MonitorInterval)
	assert.Equal(t, 1000, cfg.BatchSize)
}

func TestSourceOverridesDefaults(t *testing.T) {
	cfg := &C{}
	src := mapSource{
		"BIGBROTR_DB_HOST":          "db.internal",
		"BIGBROTR_MONITOR_INTERVAL": "15m",
		"BIGBROTR_NUM_CORES":        "8",
	}
	require.NoError(t, env.Load(cfg, &env.Options{Source: src}))
	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, 15*time.Minute, cfg.MonitorInterval)
	assert.Equal(t, 8, cfg.NumCores)
}

func TestSocksAddr(t *testing.T) {
	cfg := &C{}
	assert.Equal(t, "", cfg.SocksAddr())
	cfg.SocksHost = "127.0.0.1"
	cfg.SocksPort = 9050
	assert.Equal(t, "127.0.0.1:9050", cfg.SocksAddr())
}

func TestPrintEnvSortedAndComplete(t *testing.T) {
	cfg := &C{}
	require.NoError(t, env.Load(cfg, &env.Options{Source: mapSource{}}))
	var buf bytes.Buffer
	PrintEnv(cfg, &buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Contains(t, buf.String(), "BIGBROTR_DB_HOST=localhost")
	sorted := append([]string{}, lines...)
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1], sorted[i])
	}
}
