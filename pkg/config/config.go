// Package config loads doccore's configuration from a YAML file overlaid
// with environment variable overrides, and auto-selects a resource tier
// from the host's CPU/RAM when a caller hasn't pinned explicit values
// (spec.md §6.6).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ProcessorConfig mirrors spec.md §6.6 `processor`.
type ProcessorConfig struct {
	MaxQueueSize       int `yaml:"max_queue_size"`
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`
	TaskTimeoutMs      int `yaml:"task_timeout_ms"`
	CleanupTimeoutMs   int `yaml:"cleanup_timeout_ms"`
	MaxRetries         int `yaml:"max_retries"`
	RetryDelayMs       int `yaml:"retry_delay_ms"`
}

// PerformanceConfig mirrors spec.md §6.6 `performance`.
type PerformanceConfig struct {
	EnableMonitoring      bool    `yaml:"enable_monitoring"`
	MiddlewareTimeoutMs   int     `yaml:"middleware_timeout_ms"`
	LogThresholdMs        int     `yaml:"log_threshold_ms"`
	TaskReceiveTimeoutMs  int     `yaml:"task_receive_timeout_ms"`
	EnableDetailedLogging bool    `yaml:"enable_detailed_logging"`
	MetricsSamplingRate   float64 `yaml:"metrics_sampling_rate"`
	MaxAppendDepth        int     `yaml:"max_append_depth"`
}

// EventConfig mirrors spec.md §6.6 `event`.
type EventConfig struct {
	MaxQueueSize           int    `yaml:"max_queue_size"`
	SlowSubscriberDropPolicy string `yaml:"slow_subscriber_drop_policy"`
}

// HistoryConfig mirrors spec.md §6.6 `history`.
type HistoryConfig struct {
	MaxEntries        int  `yaml:"max_entries"`
	EnableCompression bool `yaml:"enable_compression"`
}

// ExtensionConfig mirrors spec.md §6.6 `extension`.
type ExtensionConfig struct {
	XMLSchemaPaths []string `yaml:"xml_schema_paths"`
}

// CacheConfig mirrors spec.md §6.6 `cache`.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// RuntimeType is a selector hint only (spec.md §6.6 `runtime.runtime_type`)
// — this module implements the Sync shape throughout; Async/Actor are
// accepted as config values for forward-compatibility with a future
// scheduler but are not separately implemented here.
type RuntimeType string

const (
	RuntimeSync  RuntimeType = "Sync"
	RuntimeAsync RuntimeType = "Async"
	RuntimeActor RuntimeType = "Actor"
)

// RuntimeSection mirrors spec.md §6.6 `runtime`.
type RuntimeSection struct {
	RuntimeType RuntimeType `yaml:"runtime_type"`
}

// Config is the full recognized key tree (spec.md §6.6).
type Config struct {
	Processor   ProcessorConfig   `yaml:"processor"`
	Performance PerformanceConfig `yaml:"performance"`
	Event       EventConfig       `yaml:"event"`
	History     HistoryConfig     `yaml:"history"`
	Extension   ExtensionConfig   `yaml:"extension"`
	Cache       CacheConfig       `yaml:"cache"`
	Runtime     RuntimeSection    `yaml:"runtime"`
}

// Default returns the built-in defaults (MetricsSamplingRate 1.0, whereas
// the Medium tier in tier.go sets 0.5); Load overlays a resource-tier
// detection pass on top of this when the caller hasn't supplied a YAML
// file pinning explicit values.
func Default() *Config {
	return &Config{
		Processor: ProcessorConfig{
			MaxQueueSize: 1024, MaxConcurrentTasks: 4, TaskTimeoutMs: 30_000,
			CleanupTimeoutMs: 5_000, MaxRetries: 0, RetryDelayMs: 100,
		},
		Performance: PerformanceConfig{
			EnableMonitoring: true, MiddlewareTimeoutMs: 2_000, LogThresholdMs: 200,
			TaskReceiveTimeoutMs: 5_000, EnableDetailedLogging: false,
			MetricsSamplingRate: 1.0, MaxAppendDepth: 8,
		},
		Event:     EventConfig{MaxQueueSize: 256, SlowSubscriberDropPolicy: "drop_oldest"},
		History:   HistoryConfig{MaxEntries: 100, EnableCompression: false},
		Extension: ExtensionConfig{},
		Cache:     CacheConfig{MaxEntries: 10_000},
		Runtime:   RuntimeSection{RuntimeType: RuntimeSync},
	}
}

// Load reads path (if it exists) as YAML over the tier-detected defaults,
// then applies DOCCORE_-prefixed environment overrides, matching the
// teacher's env-with-fallback style (pkg/config.Load) generalized to a
// structured key tree instead of five flat fields.
func Load(path string) (*Config, error) {
	cfg := Default()
	ApplyResourceTier(cfg, DetectTier())

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCCORE_MAX_CONCURRENT_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Processor.MaxConcurrentTasks = n
		}
	}
	if v := os.Getenv("DOCCORE_MAX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Processor.MaxQueueSize = n
		}
	}
	if v := os.Getenv("DOCCORE_METRICS_SAMPLING_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Performance.MetricsSamplingRate = f
		}
	}
	if v := os.Getenv("DOCCORE_ENABLE_DETAILED_LOGGING"); v != "" {
		cfg.Performance.EnableDetailedLogging = v == "true"
	}
	if v := os.Getenv("DOCCORE_RUNTIME_TYPE"); v != "" {
		cfg.Runtime.RuntimeType = RuntimeType(v)
	}
}
