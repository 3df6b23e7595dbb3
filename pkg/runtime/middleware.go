package runtime

import (
	"context"
	"fmt"

	"github.com/mindburn-labs/doccore/pkg/state"
	"github.com/mindburn-labs/doccore/pkg/transform"
)

// Middleware runs before and after every dispatch (spec.md §4.6, §5).
// Either hook may be a no-op; BeforeDispatch returning an error aborts the
// dispatch before the transaction ever reaches the flow engine.
type Middleware interface {
	Name() string
	BeforeDispatch(ctx context.Context, tx *transform.Transaction) error
	AfterDispatch(ctx context.Context, st *state.State, txs []*transform.Transaction) (*transform.Transaction, error)
}

// MiddlewareError wraps a middleware failure or timeout with the
// middleware's name for correlation (spec.md §7).
type MiddlewareError struct {
	Middleware string
	Err        error
}

func (e *MiddlewareError) Error() string {
	return fmt.Sprintf("middleware %q: %v", e.Middleware, e.Err)
}
func (e *MiddlewareError) Unwrap() error { return e.Err }

// Stack runs a fixed, ordered list of Middleware, each under its own
// per-invocation timeout (spec.md §5 "every middleware invocation is
// wrapped in a timeout").
type Stack struct {
	chain   []Middleware
	timeout func() (ctx context.Context, cancel context.CancelFunc)
}

// NewStack builds a Stack that derives each middleware's timeout context
// from timeoutFn (normally context.WithTimeout against the configured
// middleware_timeout_ms).
func NewStack(chain []Middleware, timeoutFn func() (context.Context, context.CancelFunc)) *Stack {
	return &Stack{chain: chain, timeout: timeoutFn}
}

// RunBefore runs before_dispatch for every middleware in insertion order;
// the first failure or timeout aborts and is returned as a MiddlewareError.
func (s *Stack) RunBefore(parent context.Context, tx *transform.Transaction) error {
	for _, mw := range s.chain {
		ctx, cancel := s.timeout()
		err := runBefore(ctx, mw, tx)
		cancel()
		if err != nil {
			return &MiddlewareError{Middleware: mw.Name(), Err: err}
		}
	}
	return nil
}

func runBefore(ctx context.Context, mw Middleware, tx *transform.Transaction) error {
	done := make(chan error, 1)
	go func() { done <- mw.BeforeDispatch(ctx, tx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAfter runs after_dispatch for every middleware in insertion order. A
// middleware may return an additional transaction to fold back into the
// caller's pending work (spec.md §4.6 step 4).
func (s *Stack) RunAfter(parent context.Context, st *state.State, txs []*transform.Transaction) ([]*transform.Transaction, error) {
	var appended []*transform.Transaction
	for _, mw := range s.chain {
		ctx, cancel := s.timeout()
		extra, err := runAfter(ctx, mw, st, txs)
		cancel()
		if err != nil {
			return appended, &MiddlewareError{Middleware: mw.Name(), Err: err}
		}
		if extra != nil {
			appended = append(appended, extra)
		}
	}
	return appended, nil
}

func runAfter(ctx context.Context, mw Middleware, st *state.State, txs []*transform.Transaction) (*transform.Transaction, error) {
	type result struct {
		tx  *transform.Transaction
		err error
	}
	done := make(chan result, 1)
	go func() {
		tx, err := mw.AfterDispatch(ctx, st, txs)
		done <- result{tx, err}
	}()
	select {
	case r := <-done:
		return r.tx, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
