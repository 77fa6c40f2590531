// Package config manages greplay's configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete greplay configuration.
type Config struct {
	Metrics   MetricsConfig  `koanf:"metrics"`
	Log       LogConfig      `koanf:"log"`
	Replay    ReplayConfig   `koanf:"replay"`
	Sources   []SourceConfig `koanf:"sources"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ReplayConfig holds the replay engine's option set (spec.md section 3
// "Option set"), expressed declaratively for the CLI/daemon path.
type ReplayConfig struct {
	// IfaceA is the required output interface.
	IfaceA string `koanf:"iface_a"`
	// IfaceB is the optional second output interface for
	// bitmap-routed dual-interface replay.
	IfaceB string `koanf:"iface_b"`

	// Loop is the loop count; 0 means infinite.
	Loop int `koanf:"loop"`

	// Speed selects the speed mode: "topspeed", "multiplier",
	// "mbps", "pps", or "oneatatime". Validate accepts "oneatatime",
	// but runctl rejects it, since a config file cannot supply the
	// single-step callback.
	Speed string `koanf:"speed"`
	// SpeedMultiplier is used when Speed == "multiplier".
	SpeedMultiplier float64 `koanf:"speed_multiplier"`
	// SpeedMbps is used when Speed == "mbps".
	SpeedMbps float64 `koanf:"speed_mbps"`
	// SpeedPPS and SpeedBurst are used when Speed == "pps".
	SpeedPPS   float64 `koanf:"speed_pps"`
	SpeedBurst int     `koanf:"speed_burst"`

	// Strategy selects the timing-accuracy strategy: "absolute-time",
	// "gettimeofday-spin", "nanosleep", "select-sleep", "rdtsc-spin",
	// or "ioport-sleep".
	Strategy string `koanf:"strategy"`

	// MTU is the maximum effective packet length; 0 (the default)
	// disables the check, and negative values are rejected.
	MTU int `koanf:"mtu"`
	// LimitSend caps the number of packets sent; -1 is unlimited.
	LimitSend int64 `koanf:"limit_send"`

	// EnableFileCache turns on the in-memory packet cache (a no-op
	// when Loop == 1).
	EnableFileCache bool `koanf:"enable_file_cache"`
	// UsePktHdrLen selects original_length over captured_length for
	// rate computation and MTU enforcement.
	UsePktHdrLen bool `koanf:"use_pkthdr_len"`
	// AccelMicros is the sleep-accelerator fudge factor in
	// microseconds.
	AccelMicros int64 `koanf:"accel_micros"`

	// BitmapPath, if set, names a classification-bitmap file produced
	// by cmd/greplay-bitmapgen, bound to the single configured source.
	BitmapPath string `koanf:"bitmap_path"`
}

// SourceConfig describes one configured packet source (spec.md
// section 4.5's "filename" variant; the "fd" variant has no
// declarative form and is only reachable via the Go API).
type SourceConfig struct {
	// Path is the capture file path.
	Path string `koanf:"path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Replay: ReplayConfig{
			Loop:      1,
			Speed:     "topspeed",
			Strategy:  "nanosleep",
			LimitSend: -1,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for greplay configuration.
// Variables are named GREPLAY_<section>_<key>, e.g., GREPLAY_METRICS_ADDR.
const envPrefix = "GREPLAY_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GREPLAY_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GREPLAY_METRICS_ADDR -> metrics.addr and
// GREPLAY_REPLAY_IFACE_A -> replay.iface_a.
// Strips the GREPLAY_ prefix, lowercases, and replaces the first _
// (the section separator) with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":            defaults.Metrics.Addr,
		"metrics.path":            defaults.Metrics.Path,
		"log.level":               defaults.Log.Level,
		"log.format":              defaults.Log.Format,
		"replay.loop":             defaults.Replay.Loop,
		"replay.speed":            defaults.Replay.Speed,
		"replay.strategy":         defaults.Replay.Strategy,
		"replay.limit_send":       defaults.Replay.LimitSend,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrNoIfaceA indicates replay.iface_a is empty.
	ErrNoIfaceA = errors.New("replay.iface_a must not be empty")

	// ErrInvalidMTU indicates replay.mtu is negative.
	ErrInvalidMTU = errors.New("replay.mtu must be > 0 when set")

	// ErrInvalidSpeed indicates replay.speed names an unrecognized mode.
	ErrInvalidSpeed = errors.New("replay.speed must be one of topspeed, multiplier, mbps, pps, oneatatime")

	// ErrNoSources indicates no sources were configured.
	ErrNoSources = errors.New("at least one source is required")

	// ErrBitmapWithoutSingleSource indicates a bitmap was configured
	// without exactly one source.
	ErrBitmapWithoutSingleSource = errors.New("replay.bitmap_path requires exactly one configured source")
)

// ValidSpeedModes lists the recognized speed-mode strings.
var ValidSpeedModes = map[string]bool{
	"topspeed":   true,
	"multiplier": true,
	"mbps":       true,
	"pps":        true,
	"oneatatime": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Replay.IfaceA == "" {
		return ErrNoIfaceA
	}
	if cfg.Replay.MTU < 0 {
		return ErrInvalidMTU
	}
	if !ValidSpeedModes[cfg.Replay.Speed] {
		return fmt.Errorf("speed %q: %w", cfg.Replay.Speed, ErrInvalidSpeed)
	}
	if len(cfg.Sources) == 0 {
		return ErrNoSources
	}
	if cfg.Replay.BitmapPath != "" && len(cfg.Sources) != 1 {
		return ErrBitmapWithoutSingleSource
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
