package runtime

import "time"

// ProcessorConfig tunes the FlowEngine worker pool (spec.md §6.6).
type ProcessorConfig struct {
	MaxQueueSize       int
	MaxConcurrentTasks int
	TaskTimeout        time.Duration
	CleanupTimeout     time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
}

// DefaultProcessorConfig mirrors a conservative single-node default tier.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxQueueSize:       1024,
		MaxConcurrentTasks: 4,
		TaskTimeout:        30 * time.Second,
		CleanupTimeout:     5 * time.Second,
		MaxRetries:         0,
		RetryDelay:         100 * time.Millisecond,
	}
}

// EventConfig tunes the EventBus (spec.md §6.6, §5 "bounded queue").
type EventConfig struct {
	MaxQueueSize        int
	SlowSubscriberDrops bool
}

// DefaultEventConfig is the EventBus default tier.
func DefaultEventConfig() EventConfig {
	return EventConfig{MaxQueueSize: 256, SlowSubscriberDrops: true}
}

// HistoryConfig tunes the undo/redo stack (spec.md §6.6).
type HistoryConfig struct {
	MaxEntries int
}

// DefaultHistoryConfig caps undo history at a reasonable default.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{MaxEntries: 100}
}

// MiddlewareTimeouts bounds before/after middleware invocations (spec.md
// §5 "Cancellation & timeouts").
type MiddlewareTimeouts struct {
	MiddlewareTimeout time.Duration
	LogThreshold      time.Duration
}

// DefaultMiddlewareTimeouts is the default tier.
func DefaultMiddlewareTimeouts() MiddlewareTimeouts {
	return MiddlewareTimeouts{
		MiddlewareTimeout: 2 * time.Second,
		LogThreshold:      200 * time.Millisecond,
	}
}

// Options configures Runtime.Create (spec.md §4.6 create()).
type Options struct {
	Processor  ProcessorConfig
	Event      EventConfig
	History    HistoryConfig
	Middleware MiddlewareTimeouts
}

// DefaultOptions is the out-of-the-box tier; resource-tier auto-selection
// (pkg/config) overrides these from detected CPU/RAM.
func DefaultOptions() Options {
	return Options{
		Processor:  DefaultProcessorConfig(),
		Event:      DefaultEventConfig(),
		History:    DefaultHistoryConfig(),
		Middleware: DefaultMiddlewareTimeouts(),
	}
}
