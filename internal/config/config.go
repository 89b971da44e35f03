// Package config holds all vlearn configuration. Values come from built-in
// defaults, an optional yaml file, and environment overrides, in that order.
// Configuration loading never fails the process: unknown or malformed values
// fall back to their defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Learning modes.
const (
	ModeDisabled     = "disabled"
	ModeConservative = "conservative"
	ModeStandard     = "standard"
	ModeAdvanced     = "advanced"
)

// Config holds all vlearn configuration.
type Config struct {
	// Learning mode: disabled, conservative, standard, advanced.
	Mode string `yaml:"mode"`

	// Root directory for persisted patterns/analytics/knowledge.
	StoragePath string `yaml:"storage_path"`

	// Resource ceilings.
	Limits LimitsConfig `yaml:"limits"`

	// Bounded work queue capacity.
	QueueCapacity int `yaml:"queue_capacity"`

	// Circuit breaker tuning.
	Breaker BreakerConfig `yaml:"breaker"`

	// Sub-feature toggles.
	Features FeaturesConfig `yaml:"features"`

	// Analytics history cap (most-recent-first in-memory events).
	HistorySize int `yaml:"history_size"`

	// Pattern cache capacity (LRU).
	PatternCacheSize int `yaml:"pattern_cache_size"`
}

// LimitsConfig configures the resource and storage ceilings that gate
// learning work.
type LimitsConfig struct {
	MaxMemoryMB   int `yaml:"max_memory_mb"`
	MaxCPUPercent int `yaml:"max_cpu_percent"`
	MaxStorageMB  int `yaml:"max_storage_mb"`
}

// BreakerConfig configures the per-operation circuit breaker.
type BreakerConfig struct {
	ErrorThreshold  int `yaml:"error_threshold"`
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// Cooldown returns the breaker cool-down as a duration.
func (b BreakerConfig) Cooldown() time.Duration {
	return time.Duration(b.CooldownSeconds) * time.Second
}

// FeaturesConfig toggles analytics sub-features.
type FeaturesConfig struct {
	Analytics  bool `yaml:"analytics"`
	Prediction bool `yaml:"prediction"`
	Trends     bool `yaml:"trends"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mode:        ModeAdvanced,
		StoragePath: ".vlearn",
		Limits: LimitsConfig{
			MaxMemoryMB:   512,
			MaxCPUPercent: 80,
			MaxStorageMB:  256,
		},
		QueueCapacity: 1024,
		Breaker: BreakerConfig{
			ErrorThreshold:  5,
			CooldownSeconds: 300,
		},
		Features: FeaturesConfig{
			Analytics:  true,
			Prediction: true,
			Trends:     true,
		},
		HistorySize:      1000,
		PatternCacheSize: 256,
	}
}

// Load builds the effective configuration: defaults, then the yaml file
// named by VLEARN_CONFIG (if any), then environment overrides. It never
// returns an error; anything unreadable falls back to defaults.
func Load() Config {
	cfg := Default()

	if path := os.Getenv("VLEARN_CONFIG"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			// Unmarshal over the defaults so absent keys keep them.
			_ = yaml.Unmarshal(data, &cfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyModeProfile()
	cfg.sanitize()
	return cfg
}

// applyEnvOverrides applies the VLEARN_* environment surface. Environment
// always wins over the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VLEARN_MODE"); v != "" {
		c.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("VLEARN_STORAGE_PATH"); v != "" {
		c.StoragePath = v
	}
	if n, ok := envInt("VLEARN_MAX_MEMORY_MB"); ok {
		c.Limits.MaxMemoryMB = n
	}
	if n, ok := envInt("VLEARN_MAX_CPU_PERCENT"); ok {
		c.Limits.MaxCPUPercent = n
	}
	if n, ok := envInt("VLEARN_MAX_STORAGE_MB"); ok {
		c.Limits.MaxStorageMB = n
	}
	if n, ok := envInt("VLEARN_QUEUE_CAPACITY"); ok {
		c.QueueCapacity = n
	}
	if n, ok := envInt("VLEARN_BREAKER_THRESHOLD"); ok {
		c.Breaker.ErrorThreshold = n
	}
	if n, ok := envInt("VLEARN_BREAKER_COOLDOWN_SECONDS"); ok {
		c.Breaker.CooldownSeconds = n
	}
	if b, ok := envBool("VLEARN_ENABLE_ANALYTICS"); ok {
		c.Features.Analytics = b
	}
	if b, ok := envBool("VLEARN_ENABLE_PREDICTION"); ok {
		c.Features.Prediction = b
	}
}

// applyModeProfile narrows feature surface for the conservative profile and
// normalizes unrecognized modes back to the default.
func (c *Config) applyModeProfile() {
	switch c.Mode {
	case ModeDisabled, ModeStandard, ModeAdvanced:
	case ModeConservative:
		c.QueueCapacity = c.QueueCapacity / 2
		c.Features.Prediction = false
		c.Features.Trends = false
	default:
		c.Mode = ModeAdvanced
	}
	if c.Mode == ModeStandard {
		c.Features.Trends = false
	}
}

// sanitize clamps nonsensical values back to defaults.
func (c *Config) sanitize() {
	def := Default()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.Limits.MaxMemoryMB <= 0 {
		c.Limits.MaxMemoryMB = def.Limits.MaxMemoryMB
	}
	if c.Limits.MaxCPUPercent <= 0 || c.Limits.MaxCPUPercent > 100 {
		c.Limits.MaxCPUPercent = def.Limits.MaxCPUPercent
	}
	if c.Limits.MaxStorageMB <= 0 {
		c.Limits.MaxStorageMB = def.Limits.MaxStorageMB
	}
	if c.Breaker.ErrorThreshold <= 0 {
		c.Breaker.ErrorThreshold = def.Breaker.ErrorThreshold
	}
	if c.Breaker.CooldownSeconds <= 0 {
		c.Breaker.CooldownSeconds = def.Breaker.CooldownSeconds
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.PatternCacheSize <= 0 {
		c.PatternCacheSize = def.PatternCacheSize
	}
	if c.StoragePath == "" {
		c.StoragePath = def.StoragePath
	}
}

// Enabled reports whether learning should run at all.
func (c Config) Enabled() bool {
	return c.Mode != ModeDisabled
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return false, false
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
