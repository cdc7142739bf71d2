// Package rules provides the CEL-Go based risk rule engine.
package rules

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine evaluates the configured risk predicates against transaction
// amounts. The predicates are CEL expressions over a single `amount`
// variable, compiled once at startup so per-transaction evaluation is a
// program invocation rather than a parse.
type Engine struct {
	cfg            domain.RulesConfig
	highAmount     cel.Program
	highValueEntry cel.Program
}

// NewEngine compiles the configured rule expressions.
func NewEngine(cfg domain.RulesConfig) (*Engine, error) {
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = 2
	}
	if cfg.PatternCount <= 0 {
		cfg.PatternCount = 2
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	highAmount, err := compilePredicate(env, "high_amount", cfg.HighAmountExpr)
	if err != nil {
		return nil, err
	}
	highValueEntry, err := compilePredicate(env, "high_value_entry", cfg.HighValueEntryExpr)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:            cfg,
		highAmount:     highAmount,
		highValueEntry: highValueEntry,
	}, nil
}

func compilePredicate(env *cel.Env, name, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", name, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", name, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", name, err)
	}
	return program, nil
}

// HighAmount reports whether a single transaction amount trips the
// high-amount rule.
func (e *Engine) HighAmount(amount float64) (bool, error) {
	return e.eval(e.highAmount, "high_amount", amount)
}

// HighValueEntry reports whether one history entry counts toward the
// repeated-pattern rule.
func (e *Engine) HighValueEntry(amount float64) (bool, error) {
	return e.eval(e.highValueEntry, "high_value_entry", amount)
}

func (e *Engine) eval(p cel.Program, name string, amount float64) (bool, error) {
	out, _, err := p.Eval(map[string]any{"amount": amount})
	if err != nil {
		return false, fmt.Errorf("rule %s evaluation failed: %w", name, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("rule %s returned non-bool result", name)
	}
	return bool(b), nil
}

// LookbackMonths returns the size of the history window in months.
func (e *Engine) LookbackMonths() int {
	return e.cfg.LookbackMonths
}

// WindowStart returns the start of the history lookback window ending at
// ref. The bound is inclusive: an entry dated exactly at the window start
// is inside the window.
func (e *Engine) WindowStart(ref time.Time) time.Time {
	return ref.AddDate(0, -e.cfg.LookbackMonths, 0)
}

// CountRecentHighValue counts the history entries within the lookback
// window whose quantity trips the high-value-entry rule. Entries with
// unparseable dates are skipped rather than failing the evaluation.
func (e *Engine) CountRecentHighValue(entries []domain.HistoryEntry, ref time.Time) (int, error) {
	start := e.WindowStart(ref)
	count := 0
	for _, entry := range entries {
		at := entry.Time()
		if at.IsZero() {
			continue
		}
		if at.Before(start) || at.After(ref) {
			continue
		}
		high, err := e.HighValueEntry(entry.Quantity)
		if err != nil {
			return 0, err
		}
		if high {
			count++
		}
	}
	return count, nil
}

// PatternDetected reports whether count recent high-value entries are
// enough to flag a repeated-spending pattern.
func (e *Engine) PatternDetected(count int) bool {
	return count >= e.cfg.PatternCount
}
