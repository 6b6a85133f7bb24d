package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/DanielMTyler/ellie-sub000/internal/logging"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds configuration for the ellie runtime.
type Config struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
	Strict    bool   `yaml:"strict"`     // panic on scheduler contract violations

	Frame  FrameConfig  `yaml:"frame"`
	Events EventsConfig `yaml:"events"`
	Trace  TraceConfig  `yaml:"trace"`
}

// FrameConfig controls the frame loop.
type FrameConfig struct {
	TargetFPS    int           `yaml:"target_fps"`
	MaxDelta     time.Duration `yaml:"max_delta"`      // clamp for a single frame's dt (0 = no clamp)
	MaxFrames    uint64        `yaml:"max_frames"`     // 0 = unlimited
	StopWhenIdle bool          `yaml:"stop_when_idle"` // stop once every manager is empty
	Managers     []string      `yaml:"managers"`       // update order
}

// EventsConfig controls the per-frame event bus drain.
type EventsConfig struct {
	LimitTime bool          `yaml:"limit_time"`
	MaxDrain  time.Duration `yaml:"max_drain"`
}

// TraceConfig controls the optional frame trace database.
type TraceConfig struct {
	DBPath string `yaml:"db_path"` // empty disables tracing, ":memory:" for tests
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Frame: FrameConfig{
			TargetFPS: 60,
			MaxDelta:  250 * time.Millisecond,
			Managers:  []string{"logic", "view", "input"},
		},
		Events: EventsConfig{
			LimitTime: true,
			MaxDrain:  20 * time.Millisecond,
		},
	}
}

// FrameInterval returns the target duration of one frame.
func (c *Config) FrameInterval() time.Duration {
	if c.Frame.TargetFPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Frame.TargetFPS)
}

// Load reads configuration from path on top of the defaults, then applies
// ELLIE_* environment overrides. An empty path or a missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(expandPath(path))
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Trace.DBPath = expandPath(cfg.Trace.DBPath)
	return cfg, cfg.Validate()
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are
// given) into the process environment. Missing files are ignored; variables
// already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ELLIE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ELLIE_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ELLIE_TRACE_DB"); v != "" {
		c.Trace.DBPath = v
	}
	if v := os.Getenv("ELLIE_STRICT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ELLIE_STRICT: %w", err)
		}
		c.Strict = b
	}
	if v := os.Getenv("ELLIE_TARGET_FPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ELLIE_TARGET_FPS: %w", err)
		}
		c.Frame.TargetFPS = n
	}
	return nil
}

// Validate checks the configuration for values the runtime cannot use.
func (c *Config) Validate() error {
	var errs []error
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if c.Frame.TargetFPS < 0 {
		errs = append(errs, fmt.Errorf("frame.target_fps must be >= 0, got %d", c.Frame.TargetFPS))
	}
	if c.Frame.MaxDelta < 0 {
		errs = append(errs, fmt.Errorf("frame.max_delta must be >= 0, got %s", c.Frame.MaxDelta))
	}
	if len(c.Frame.Managers) == 0 {
		errs = append(errs, errors.New("frame.managers must name at least one manager"))
	}
	seen := make(map[string]bool, len(c.Frame.Managers))
	for _, name := range c.Frame.Managers {
		if name == "" {
			errs = append(errs, errors.New("frame.managers contains an empty name"))
		} else if seen[name] {
			errs = append(errs, fmt.Errorf("frame.managers lists %q twice", name))
		}
		seen[name] = true
	}
	if c.Events.LimitTime && c.Events.MaxDrain <= 0 {
		errs = append(errs, fmt.Errorf("events.max_drain must be > 0 when limit_time is set, got %s", c.Events.MaxDrain))
	}
	return errors.Join(errs...)
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	return filepath.Join(home, path[1:])
}
