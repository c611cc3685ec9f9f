// Package config loads scheduler settings from YAML and validates them
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"runtime"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mvvplatform/internal/pool"
)

//go:embed schema.cue
var schemaCUE string

// Journal drivers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
)

// Config is the scheduler configuration.
type Config struct {
	Workers    int           `yaml:"workers" json:"workers"`
	ScanPolicy string        `yaml:"scan_policy" json:"scan_policy"`
	Tick       string        `yaml:"tick" json:"tick"`
	Journal    JournalConfig `yaml:"journal" json:"journal"`
	Log        LogConfig     `yaml:"log" json:"log"`

	tick time.Duration
	scan pool.ScanPolicy
}

// JournalConfig selects where order lifecycle events go.
type JournalConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
}

// LogConfig configures the slog handler installed by the CLI.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is given.
// Workers defaults to the number of CPUs.
func Default() *Config {
	return &Config{
		Workers:    runtime.NumCPU(),
		ScanPolicy: pool.ScanDrainSync.String(),
		Tick:       "1ms",
		Journal:    JournalConfig{Driver: DriverNone},
		Log:        LogConfig{Level: "info", Format: "text"},
		tick:       time.Millisecond,
		scan:       pool.ScanDrainSync,
	}
}

// Load reads path, overlays it on Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the schema and resolves the
// derived fields (tick duration, scan policy).
func (c *Config) Validate() error {
	cctx := cuecontext.New()
	schema := cctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	val := def.Unify(cctx.Encode(c))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}

	tick, err := time.ParseDuration(c.Tick)
	if err != nil {
		return fmt.Errorf("invalid config: tick: %w", err)
	}
	if tick <= 0 {
		return fmt.Errorf("invalid config: tick must be positive, got %s", tick)
	}
	scan, err := pool.ParseScanPolicy(c.ScanPolicy)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.tick = tick
	c.scan = scan
	return nil
}

// TickDuration returns the parsed tick. Valid after Validate.
func (c *Config) TickDuration() time.Duration { return c.tick }

// Scan returns the parsed scan policy. Valid after Validate.
func (c *Config) Scan() pool.ScanPolicy { return c.scan }
