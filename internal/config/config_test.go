package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Frame.TargetFPS != def.Frame.TargetFPS || cfg.Events.MaxDrain != def.Events.MaxDrain {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ellie.yaml", `
log_level: debug
log_format: json
strict: true
frame:
  target_fps: 30
  max_delta: 100ms
  max_frames: 120
  managers: [logic, view]
events:
  limit_time: true
  max_drain: 5ms
trace:
  db_path: ":memory:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" || !cfg.Strict {
		t.Errorf("top-level = %q %q %v", cfg.LogLevel, cfg.LogFormat, cfg.Strict)
	}
	if cfg.Frame.TargetFPS != 30 || cfg.Frame.MaxDelta != 100*time.Millisecond || cfg.Frame.MaxFrames != 120 {
		t.Errorf("frame = %+v", cfg.Frame)
	}
	if strings.Join(cfg.Frame.Managers, ",") != "logic,view" {
		t.Errorf("managers = %v", cfg.Frame.Managers)
	}
	if cfg.Events.MaxDrain != 5*time.Millisecond {
		t.Errorf("max_drain = %v, want 5ms", cfg.Events.MaxDrain)
	}
	if cfg.Trace.DBPath != ":memory:" {
		t.Errorf("db_path = %q", cfg.Trace.DBPath)
	}
	if got := cfg.FrameInterval(); got != time.Second/30 {
		t.Errorf("FrameInterval = %v", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ELLIE_LOG_LEVEL", "warn")
	t.Setenv("ELLIE_STRICT", "true")
	t.Setenv("ELLIE_TARGET_FPS", "144")
	t.Setenv("ELLIE_TRACE_DB", "/tmp/trace.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" || !cfg.Strict || cfg.Frame.TargetFPS != 144 || cfg.Trace.DBPath != "/tmp/trace.db" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("ELLIE_STRICT", "maybe")
	if _, err := Load(""); err == nil {
		t.Error("expected error for ELLIE_STRICT=maybe")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "frame: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
		{"negative fps", func(c *Config) { c.Frame.TargetFPS = -1 }, "target_fps"},
		{"no managers", func(c *Config) { c.Frame.Managers = nil }, "at least one"},
		{"duplicate manager", func(c *Config) { c.Frame.Managers = []string{"a", "a"} }, "twice"},
		{"zero budget", func(c *Config) { c.Events.MaxDrain = 0 }, "max_drain"},
		{"zero budget unlimited", func(c *Config) { c.Events.LimitTime = false; c.Events.MaxDrain = 0 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "test.env", "ELLIE_DOTENV_PROBE=from-file\n")
	t.Setenv("ELLIE_DOTENV_PROBE", "")
	os.Unsetenv("ELLIE_DOTENV_PROBE")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("ELLIE_DOTENV_PROBE"); got != "from-file" {
		t.Errorf("ELLIE_DOTENV_PROBE = %q, want from-file", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"~", home},
		{"~/traces/ellie.db", filepath.Join(home, "traces/ellie.db")},
		{":memory:", ":memory:"},
		{"/abs/path", "/abs/path"},
	}
	for _, tt := range tests {
		if got := expandPath(tt.input); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
