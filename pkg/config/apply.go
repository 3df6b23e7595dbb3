package config

import (
	"time"

	"github.com/mindburn-labs/doccore/pkg/persistence"
	"github.com/mindburn-labs/doccore/pkg/runtime"
	"github.com/mindburn-labs/doccore/pkg/state"
)

// ToRuntimeOptions translates the recognized `processor`/`event`/`history`/
// `performance` keys into runtime.Options (spec.md §6.6 -> §4.6 create()).
func (c *Config) ToRuntimeOptions() runtime.Options {
	return runtime.Options{
		Processor: runtime.ProcessorConfig{
			MaxQueueSize:       c.Processor.MaxQueueSize,
			MaxConcurrentTasks: c.Processor.MaxConcurrentTasks,
			TaskTimeout:        time.Duration(c.Processor.TaskTimeoutMs) * time.Millisecond,
			CleanupTimeout:     time.Duration(c.Processor.CleanupTimeoutMs) * time.Millisecond,
			MaxRetries:         c.Processor.MaxRetries,
			RetryDelay:         time.Duration(c.Processor.RetryDelayMs) * time.Millisecond,
		},
		Event: runtime.EventConfig{
			MaxQueueSize:        c.Event.MaxQueueSize,
			SlowSubscriberDrops: c.Event.SlowSubscriberDropPolicy != "never",
		},
		History: runtime.HistoryConfig{MaxEntries: c.History.MaxEntries},
		Middleware: runtime.MiddlewareTimeouts{
			MiddlewareTimeout: time.Duration(c.Performance.MiddlewareTimeoutMs) * time.Millisecond,
			LogThreshold:      time.Duration(c.Performance.LogThresholdMs) * time.Millisecond,
		},
	}
}

// ToPerformanceConfig translates `performance.max_append_depth` into
// state.PerformanceConfig (spec.md §5 "Append-transaction fixpoint bound").
func (c *Config) ToPerformanceConfig() state.PerformanceConfig {
	depth := c.Performance.MaxAppendDepth
	if depth <= 0 {
		depth = state.DefaultPerformanceConfig().MaxAppendDepth
	}
	return state.PerformanceConfig{MaxAppendDepth: depth}
}

// ToCheckpointCadence has no direct spec.md §6.6 key (cadence there is a
// Persistence-specific concern, spec.md §6.2) but is derived here from
// `cache.max_entries` (used as EveryNEvents when positive) as a reasonable
// proxy when an embedder hasn't set up its own persistence.CheckpointCadence;
// every other field keeps persistence.DefaultCheckpointCadence's value.
func (c *Config) ToCheckpointCadence() persistence.CheckpointCadence {
	cadence := persistence.DefaultCheckpointCadence()
	if c.Cache.MaxEntries > 0 {
		cadence.EveryNEvents = c.Cache.MaxEntries
	}
	return cadence
}
