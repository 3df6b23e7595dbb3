// Package runtime orchestrates dispatch: middleware chain, FlowEngine
// worker pool, plugin append-transaction fixpoint, history, and event
// broadcast (spec.md §4.6).
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/state"
	"github.com/mindburn-labs/doccore/pkg/transform"
)

var tracer = otel.Tracer("github.com/mindburn-labs/doccore/pkg/runtime")

// Command is a named, composable unit of work that populates a
// Transaction's steps (spec.md §4.6 command()).
type Command interface {
	Name() string
	Execute(tx *transform.Transaction) error
}

// Runtime is the top-level orchestrator: current state, middleware chain,
// flow engine, event bus, and undo/redo history (spec.md §4.6).
type Runtime struct {
	mu         sync.Mutex
	current    *state.State
	middleware *Stack
	flow       *FlowEngine
	bus        *EventBus
	history    *state.History
	opts       Options
	logger     *slog.Logger
}

// Create builds a Runtime from an initial Configuration and Options
// (spec.md §4.6 create()).
func Create(cfg *state.Configuration, mw []Middleware, opts Options, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	initial := state.Create(cfg)
	timeoutFn := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), opts.Middleware.MiddlewareTimeout)
	}
	rt := &Runtime{
		current:    initial,
		middleware: NewStack(mw, timeoutFn),
		flow:       NewFlowEngine(opts.Processor),
		bus:        NewEventBus(opts.Event, logger),
		history:    state.NewHistory(&state.Entry{State: initial, Timestamp: now()}, opts.History.MaxEntries),
		opts:       opts,
		logger:     logger,
	}
	rt.bus.Publish(context.Background(), Event{Kind: EventCreate, State: initial})
	return rt
}

// now exists so tests can't accidentally rely on wall-clock determinism
// slipping into committed state; kept trivial since History itself doesn't
// compare timestamps.
func now() time.Time { return time.Now() }

// GetState returns the current state snapshot.
func (r *Runtime) GetState() *state.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Doc returns the current document.
func (r *Runtime) Doc() *model.NodePool {
	return r.GetState().Doc()
}

// GetSchema returns the current schema.
func (r *Runtime) GetSchema() *schema.Schema {
	return r.GetState().SchemaOf()
}

// Dispatch runs the full pipeline for tx and atomically swaps in the
// resulting state (spec.md §4.6 dispatch()).
func (r *Runtime) Dispatch(ctx context.Context, tx *transform.Transaction) (*state.State, error) {
	return r.DispatchWithMeta(ctx, tx, "", nil)
}

// DispatchWithMeta is Dispatch with a history description and extra
// metadata recorded on the resulting HistoryEntry.
func (r *Runtime) DispatchWithMeta(ctx context.Context, tx *transform.Transaction, description string, meta map[string]any) (*state.State, error) {
	ctx, span := tracer.Start(ctx, "doccore.runtime.dispatch")
	defer span.End()
	start := time.Now()

	r.mu.Lock()
	st := r.current
	r.mu.Unlock()

	// 1. before-middleware.
	_, beforeSpan := tracer.Start(ctx, "doccore.runtime.dispatch.before_middleware")
	err := r.middleware.RunBefore(ctx, tx)
	beforeSpan.End()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 2. submit to flow engine; it calls state.Apply(tx).
	_, flowSpan := tracer.Start(ctx, "doccore.runtime.dispatch.flow_engine")
	result, err := r.flow.Submit(ctx, st, tx)
	flowSpan.End()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	newState := result.State
	txs := result.Transactions

	// 3. after-middleware; may fold in additional transactions.
	_, afterSpan := tracer.Start(ctx, "doccore.runtime.dispatch.after_middleware")
	appended, err := r.middleware.RunAfter(ctx, newState, txs)
	afterSpan.End()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for _, extra := range appended {
		res, err := r.flow.Submit(ctx, newState, extra)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		newState = res.State
		txs = append(txs, res.Transactions...)
	}

	changed := newState.Doc() != st.Doc()

	// 4. swap state, push history, broadcast.
	r.mu.Lock()
	if changed {
		r.current = newState
		r.history.Push(&state.Entry{
			State:        newState,
			Transactions: txs,
			Description:  description,
			Meta:         meta,
			Timestamp:    now(),
		})
	}
	r.mu.Unlock()

	r.bus.Publish(ctx, Event{Kind: EventTrApply, State: newState, Transactions: txs})

	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int64("doccore.dispatch.duration_ms", elapsed.Milliseconds()))
	level := slog.LevelInfo
	if elapsed > r.opts.Middleware.LogThreshold {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "dispatch complete", "tx_id", tx.ID, "duration_ms", elapsed.Milliseconds(), "tx_count", len(txs))

	return newState, nil
}

// RunCommand builds a transaction against the current state, lets cmd
// populate its steps, then dispatches it (spec.md §4.6 command()).
func (r *Runtime) RunCommand(ctx context.Context, cmd Command) (*state.State, error) {
	st := r.GetState()
	tx := transform.New(st.Doc(), st.SchemaOf(), 0)
	if err := cmd.Execute(tx); err != nil {
		return nil, err
	}
	return r.Dispatch(ctx, tx)
}

// Undo moves the history stack back one entry and broadcasts the undone
// transactions (spec.md §4.6 undo()).
func (r *Runtime) Undo(ctx context.Context) (*state.State, bool) {
	r.mu.Lock()
	entry, txs, ok := r.history.Undo()
	if ok {
		r.current = entry.State
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	r.bus.Publish(ctx, Event{Kind: EventTrApply, State: entry.State, Transactions: txs})
	return entry.State, true
}

// Redo moves the history stack forward one entry.
func (r *Runtime) Redo(ctx context.Context) (*state.State, bool) {
	r.mu.Lock()
	entry, txs, ok := r.history.Redo()
	if ok {
		r.current = entry.State
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	r.bus.Publish(ctx, Event{Kind: EventTrApply, State: entry.State, Transactions: txs})
	return entry.State, true
}

// Jump moves n entries forward (positive) or backward (negative).
func (r *Runtime) Jump(ctx context.Context, n int) (*state.State, bool) {
	r.mu.Lock()
	entry, txs, ok := r.history.Jump(n)
	if ok {
		r.current = entry.State
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	r.bus.Publish(ctx, Event{Kind: EventTrApply, State: entry.State, Transactions: txs})
	return entry.State, true
}

// GetConfig returns the current state's configuration.
func (r *Runtime) GetConfig() *state.Configuration {
	return r.GetState().Config
}

// UpdateConfig reconfigures the runtime's state in place, preserving
// unchanged plugins' field values (spec.md §4.4 reconfigure(), §9).
func (r *Runtime) UpdateConfig(cfg *state.Configuration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = r.current.Reconfigure(cfg)
}

// Subscribe registers an event receiver. Cancel via Unsubscribe.
func (r *Runtime) Subscribe() (<-chan Event, int) {
	return r.bus.Subscribe()
}

// Unsubscribe removes a subscriber.
func (r *Runtime) Unsubscribe(id int) {
	r.bus.Unsubscribe(id)
}

// EventBus exposes the bus directly for callers that need AttachRedis.
func (r *Runtime) EventBus() *EventBus { return r.bus }

// Destroy broadcasts Destroy and shuts the flow engine down gracefully
// (spec.md §4.6 destroy()).
func (r *Runtime) Destroy(ctx context.Context) {
	r.bus.Publish(ctx, Event{Kind: EventDestroy, State: r.GetState()})
	r.flow.Shutdown()
	r.bus.Publish(ctx, Event{Kind: EventStop})
}
