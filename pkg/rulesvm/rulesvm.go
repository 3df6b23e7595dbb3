// Package rulesvm compiles CEL expressions into guard predicates usable as
// Plugin.FilterTransaction hooks and extension op-fns (SPEC_FULL.md §3/§6
// domain-stack addition; no feature of spec.md depends on it, but the
// teacher's go.mod carries google/cel-go and nothing else in the tree binds
// it, so it lives here as an optional, pluggable guard layer).
package rulesvm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
)

// CostBudget bounds a Guard's per-eval CEL cost and eval wall-clock time, mirroring
// the constraints a transaction-filtering predicate must respect: cheap,
// side-effect-free, deterministic.
type CostBudget struct {
	MaxEvaluationCost int64
	EvalTimeout       time.Duration
}

func DefaultCostBudget() CostBudget {
	return CostBudget{MaxEvaluationCost: 10_000, EvalTimeout: 5 * time.Millisecond}
}

// Guard is a compiled CEL predicate over a transaction's visible surface:
// the touched node's attrs, the transaction's meta, and the document's
// schema-declared type name. It is intentionally narrow — no document
// traversal, no I/O — so it is safe to run on every dispatch.
type Guard struct {
	expr    string
	program cel.Program
	budget  CostBudget
}

// Compile builds a Guard from a CEL boolean expression. Declared variables:
// `attrs` (map), `meta` (map), `node_type` (string), `mark_types` (list).
func Compile(expr string, budget CostBudget) (*Guard, error) {
	env, err := cel.NewEnv(
		cel.StdLib(),
		cel.Variable("attrs", cel.DynType),
		cel.Variable("meta", cel.DynType),
		cel.Variable("node_type", cel.StringType),
		cel.Variable("mark_types", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("rulesvm: build cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rulesvm: compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rulesvm: guard expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prog, err := env.Program(ast,
		cel.CostLimit(uint64(budget.MaxEvaluationCost)),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("rulesvm: build program for %q: %w", expr, err)
	}
	return &Guard{expr: expr, program: prog, budget: budget}, nil
}

// Input is the evaluation context a Guard is given. Node/marks are optional
// (a document-scoped guard may pass a zero model.Node).
type Input struct {
	Node  model.Node
	Marks []model.Mark
	Meta  map[string]any
}

// Eval runs the guard against an input, bounding wall-clock time via ctx in
// addition to CEL's own cost accounting.
func (g *Guard) Eval(ctx context.Context, sch *schema.Schema, in Input) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.budget.EvalTimeout)
	defer cancel()

	markTypes := make([]string, len(in.Marks))
	for i, m := range in.Marks {
		markTypes[i] = m.Type
	}
	vars := map[string]any{
		"attrs":      map[string]any(in.Node.Attrs),
		"meta":       in.Meta,
		"node_type":  in.Node.Type,
		"mark_types": markTypes,
	}

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, _, err := g.program.Eval(vars)
		if err != nil {
			done <- result{false, err}
			return
		}
		b, ok := val.Value().(bool)
		if !ok {
			done <- result{false, fmt.Errorf("rulesvm: guard %q did not produce a bool", g.expr)}
			return
		}
		done <- result{b, nil}
	}()

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("rulesvm: guard %q timed out: %w", g.expr, ctx.Err())
	case r := <-done:
		return r.ok, r.err
	}
}

// Expr returns the source expression, for logging/diagnostics.
func (g *Guard) Expr() string { return g.expr }
