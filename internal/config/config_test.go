package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/greplay/greplay/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Replay.Loop != 1 {
		t.Errorf("Replay.Loop = %d, want 1", cfg.Replay.Loop)
	}
	if cfg.Replay.Speed != "topspeed" {
		t.Errorf("Replay.Speed = %q, want %q", cfg.Replay.Speed, "topspeed")
	}
	if cfg.Replay.LimitSend != -1 {
		t.Errorf("Replay.LimitSend = %d, want -1", cfg.Replay.LimitSend)
	}

	// Defaults are missing iface_a and a source, so they fail
	// Validate on their own; that is expected until a caller fills
	// those in. We only check it surfaces the right error.
	if err := config.Validate(cfg); !errors.Is(err, config.ErrNoIfaceA) {
		t.Errorf("Validate(DefaultConfig()) = %v, want %v", err, config.ErrNoIfaceA)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
replay:
  iface_a: "eth0"
  loop: 3
  speed: "multiplier"
  speed_multiplier: 2.0
  mtu: 1500
sources:
  - path: "/tmp/a.pcap"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Replay.IfaceA != "eth0" {
		t.Errorf("Replay.IfaceA = %q, want %q", cfg.Replay.IfaceA, "eth0")
	}
	if cfg.Replay.Loop != 3 {
		t.Errorf("Replay.Loop = %d, want 3", cfg.Replay.Loop)
	}
	if cfg.Replay.Speed != "multiplier" {
		t.Errorf("Replay.Speed = %q, want %q", cfg.Replay.Speed, "multiplier")
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Path != "/tmp/a.pcap" {
		t.Errorf("Sources = %+v, want one entry /tmp/a.pcap", cfg.Sources)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	yamlContent := `
replay:
  iface_a: "eth0"
log:
  level: "warn"
sources:
  - path: "/tmp/a.pcap"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}
	if cfg.Replay.Speed != "topspeed" {
		t.Errorf("Replay.Speed = %q, want default %q", cfg.Replay.Speed, "topspeed")
	}
	if cfg.Replay.LimitSend != -1 {
		t.Errorf("Replay.LimitSend = %d, want default -1", cfg.Replay.LimitSend)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	base := func() *config.Config {
		cfg := config.DefaultConfig()
		cfg.Replay.IfaceA = "eth0"
		cfg.Sources = []config.SourceConfig{{Path: "/tmp/a.pcap"}}
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name:    "empty iface_a",
			modify:  func(cfg *config.Config) { cfg.Replay.IfaceA = "" },
			wantErr: config.ErrNoIfaceA,
		},
		{
			name:    "negative mtu",
			modify:  func(cfg *config.Config) { cfg.Replay.MTU = -1 },
			wantErr: config.ErrInvalidMTU,
		},
		{
			name:    "bogus speed",
			modify:  func(cfg *config.Config) { cfg.Replay.Speed = "ludicrous" },
			wantErr: config.ErrInvalidSpeed,
		},
		{
			name:    "no sources",
			modify:  func(cfg *config.Config) { cfg.Sources = nil },
			wantErr: config.ErrNoSources,
		},
		{
			name: "bitmap without single source",
			modify: func(cfg *config.Config) {
				cfg.Replay.BitmapPath = "/tmp/x.bitmap"
				cfg.Sources = []config.SourceConfig{{Path: "/tmp/a.pcap"}, {Path: "/tmp/b.pcap"}}
			},
			wantErr: config.ErrBitmapWithoutSingleSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
replay:
  iface_a: "eth0"
log:
  level: "info"
sources:
  - path: "/tmp/a.pcap"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GREPLAY_METRICS_ADDR", ":9200")
	t.Setenv("GREPLAY_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "greplay.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
