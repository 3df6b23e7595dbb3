package runtime

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/mindburn-labs/doccore/pkg/state"
	"github.com/mindburn-labs/doccore/pkg/transform"
)

// FlowError reports a flow-engine failure: queue full, task timeout, task
// cancelled (spec.md §7).
type FlowError struct {
	Reason string
}

func (e *FlowError) Error() string { return "flow engine: " + e.Reason }

type flowJob struct {
	ctx    context.Context
	state  *state.State
	tx     *transform.Transaction
	result chan flowResult
}

type flowResult struct {
	res *state.ApplyResult
	err error
}

// FlowEngine is the worker pool that runs State.Apply off the dispatch
// goroutine, per-document submissions serialized through a single queue so
// apply observes transactions in submission order (spec.md §5 "Ordering
// guarantees"). Admission is additionally rate-limited so a burst of
// submitters backs off instead of piling up past max_queue_size (spec.md
// §6.6 processor.max_queue_size), grounded on the teacher's context-deadline
// + select cancellation idiom in pkg/runtime/sandbox/sandbox.go.
type FlowEngine struct {
	jobs    chan flowJob
	done    chan struct{}
	limiter *rate.Limiter
	cfg     ProcessorConfig
}

// NewFlowEngine starts cfg.MaxConcurrentTasks worker goroutines draining a
// single ordered queue of capacity cfg.MaxQueueSize.
func NewFlowEngine(cfg ProcessorConfig) *FlowEngine {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	fe := &FlowEngine{
		jobs:    make(chan flowJob, cfg.MaxQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxConcurrentTasks*10), cfg.MaxConcurrentTasks),
		cfg:     cfg,
	}
	for i := 0; i < cfg.MaxConcurrentTasks; i++ {
		go fe.worker()
	}
	return fe
}

func (fe *FlowEngine) worker() {
	for {
		select {
		case job, ok := <-fe.jobs:
			if !ok {
				return
			}
			fe.run(job)
		case <-fe.done:
			return
		}
	}
}

func (fe *FlowEngine) run(job flowJob) {
	ctx := job.ctx
	var cancel context.CancelFunc
	if fe.cfg.TaskTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, fe.cfg.TaskTimeout)
		defer cancel()
	}
	type out struct {
		res *state.ApplyResult
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := job.state.Apply(job.tx)
		done <- out{res, err}
	}()
	select {
	case o := <-done:
		job.result <- flowResult{o.res, o.err}
	case <-ctx.Done():
		job.result <- flowResult{nil, &FlowError{Reason: "task timeout"}}
	}
}

// Submit enqueues (st, tx) and blocks for the single result, honoring
// ctx cancellation and the configured backpressure limiter (spec.md §4.6
// dispatch() step 2).
func (fe *FlowEngine) Submit(ctx context.Context, st *state.State, tx *transform.Transaction) (*state.ApplyResult, error) {
	select {
	case <-fe.done:
		return nil, &FlowError{Reason: "engine shut down"}
	default:
	}
	if err := fe.limiter.Wait(ctx); err != nil {
		return nil, &FlowError{Reason: fmt.Sprintf("backpressure: %v", err)}
	}
	job := flowJob{ctx: ctx, state: st, tx: tx, result: make(chan flowResult, 1)}
	select {
	case fe.jobs <- job:
	default:
		return nil, &FlowError{Reason: "queue full"}
	}
	select {
	case r := <-job.result:
		return r.res, r.err
	case <-ctx.Done():
		return nil, &FlowError{Reason: "task cancelled"}
	}
}

// Shutdown stops accepting new work and signals workers to exit.
func (fe *FlowEngine) Shutdown() {
	close(fe.done)
}
