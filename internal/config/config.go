// Package config loads poolserve configuration from a YAML file and the
// environment, and builds the process logger.
package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/poolserve/internal/server"
	gferrors "github.com/vnykmshr/poolserve/pkg/common/errors"
	"github.com/vnykmshr/poolserve/pkg/common/validation"
	"github.com/vnykmshr/poolserve/pkg/threadpool"
)

// Environment variables that override file values.
const (
	EnvWorkers     = "POOLSERVE_WORKERS"
	EnvFaultPolicy = "POOLSERVE_FAULT_POLICY"
	EnvAddr        = "POOLSERVE_ADDR"
	EnvRoot        = "POOLSERVE_ROOT"
	EnvLogLevel    = "POOLSERVE_LOG_LEVEL"
	EnvLogFormat   = "POOLSERVE_LOG_FORMAT"
	EnvMetricsAddr = "POOLSERVE_METRICS_ADDR"
)

// Config is the complete process configuration.
type Config struct {
	// Workers is the fixed pool size.
	Workers int `yaml:"workers"`

	// FaultPolicy is "retire" or "recover".
	FaultPolicy string `yaml:"fault_policy"`

	Server  server.Config `yaml:"server"`
	Metrics Metrics       `yaml:"metrics"`
	Log     Log           `yaml:"log"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Log configures the process logger.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns a four-worker configuration serving the current directory
// on localhost:3000.
func Default() Config {
	return Config{
		Workers:     4,
		FaultPolicy: threadpool.RetireWorker.String(),
		Server:      server.DefaultConfig(),
		Metrics: Metrics{
			Enabled: false,
			Addr:    "localhost:9090",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, gferrors.NewOperationError("config", "Load", err).WithContext(path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, gferrors.NewOperationError("config", "Decode", err).WithContext(path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvWorkers); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return gferrors.NewValidationError("config", EnvWorkers, v, "not an integer").
				WithHint("set a positive worker count")
		}
		c.Workers = n
	}
	if v, ok := lookup(EnvFaultPolicy); ok {
		c.FaultPolicy = v
	}
	if v, ok := lookup(EnvAddr); ok {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvRoot); ok {
		c.Server.Root = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		c.Log.Format = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		c.Metrics.Addr = v
		c.Metrics.Enabled = v != ""
	}
	return nil
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("config", "workers", c.Workers); err != nil {
		return err
	}
	if _, err := threadpool.ParseFaultPolicy(c.FaultPolicy); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if c.Metrics.Enabled {
		if err := validation.ValidateNotEmpty("config", "metrics.addr", c.Metrics.Addr); err != nil {
			return err
		}
	}
	if err := validation.ValidateOneOf("config", "log.level", strings.ToLower(c.Log.Level),
		"debug", "info", "warn", "error"); err != nil {
		return err
	}
	return validation.ValidateOneOf("config", "log.format", strings.ToLower(c.Log.Format), "text", "json")
}

// PoolConfig returns the thread pool configuration for c.
func (c Config) PoolConfig(logger *slog.Logger) (threadpool.Config, error) {
	policy, err := threadpool.ParseFaultPolicy(c.FaultPolicy)
	if err != nil {
		return threadpool.Config{}, err
	}
	return threadpool.Config{
		Size:        c.Workers,
		FaultPolicy: policy,
		Logger:      logger,
	}, nil
}

// NewLogger builds a slog logger writing to w at the configured level.
func NewLogger(w io.Writer, l Log) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, gferrors.NewValidationError("config", "log.level", l.Level, "unknown level").
			WithHint(`use one of "debug", "info", "warn", "error"`)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(l.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, gferrors.NewValidationError("config", "log.format", l.Format, "unknown format").
			WithHint(`use "text" or "json"`)
	}
}

// IsNotExist reports whether err came from a missing configuration file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
