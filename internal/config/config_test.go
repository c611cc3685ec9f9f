package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mvvplatform/internal/pool"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Millisecond, cfg.TickDuration())
	assert.Equal(t, pool.ScanDrainSync, cfg.Scan())
	assert.GreaterOrEqual(t, cfg.Workers, 1)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
workers: 3
scan_policy: strict
tick: 5ms
journal:
  driver: sqlite
  path: /tmp/journal.db
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, pool.ScanStrict, cfg.Scan())
	assert.Equal(t, 5*time.Millisecond, cfg.TickDuration())
	assert.Equal(t, DriverSQLite, cfg.Journal.Driver)
	assert.Equal(t, "info", cfg.Log.Level, "unset keys keep defaults")
}

func TestParse_Rejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "wokers: 2\n", "field wokers not found"},
		{"zero workers", "workers: 0\n", "workers"},
		{"bad policy", "scan_policy: lazy\n", "scan_policy"},
		{"bad driver", "journal:\n  driver: kafka\n", "driver"},
		{"sqlite without path", "journal:\n  driver: sqlite\n", "path"},
		{"pebble without path", "journal:\n  driver: pebble\n", "path"},
		{"bad level", "log:\n  level: trace\n", "level"},
		{"bad tick", "tick: soon\n", "tick"},
		{"negative tick", "tick: -1ms\n", "tick"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mvv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\nlog:\n  format: json\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "json", cfg.Log.Format)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "order_id", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"order_id":7`)
}

func TestParseLevel(t *testing.T) {
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
