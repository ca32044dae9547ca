// Package embedded is an in-process reasoning.Reasoner built on a pure-Go
// Prolog interpreter. It needs no external service, which makes it the
// engine of choice for tests and offline runs.
package embedded

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/ichiban/prolog"

	"github.com/cognicore/lexatom/pkg/lexatom/reasoning"
)

// Engine consults a fresh interpreter per Execute call, so no state leaks
// between knowledge bases.
type Engine struct {
	// MaxSolutions caps the solutions collected per goal. Zero means 1000.
	MaxSolutions int
}

// New creates an embedded engine.
func New() *Engine {
	return &Engine{}
}

// Execute consults knowledgeBase and runs goal. Consult and query errors
// become Error outcomes; the returned error is always nil.
func (e *Engine) Execute(ctx context.Context, knowledgeBase, goal string) ([]reasoning.Outcome, error) {
	p := prolog.New(nil, io.Discard)

	if err := p.ExecContext(ctx, knowledgeBase); err != nil {
		return []reasoning.Outcome{reasoning.Error(err.Error())}, nil
	}

	sols, err := p.QueryContext(ctx, terminate(goal))
	if err != nil {
		return []reasoning.Outcome{reasoning.Error(err.Error())}, nil
	}
	defer sols.Close()

	var outcomes []reasoning.Outcome
	for len(outcomes) < e.maxSolutions() && sols.Next() {
		m := map[string]prolog.TermString{}
		if err := sols.Scan(m); err != nil {
			return append(outcomes, reasoning.Error(err.Error())), nil
		}
		outcomes = append(outcomes, reasoning.Success(bindings(m)...))
	}
	if err := sols.Err(); err != nil {
		return append(outcomes, reasoning.Error(err.Error())), nil
	}
	if len(outcomes) == 0 {
		return []reasoning.Outcome{reasoning.Failure()}, nil
	}
	return outcomes, nil
}

func (e *Engine) maxSolutions() int {
	if e.MaxSolutions > 0 {
		return e.MaxSolutions
	}
	return 1000
}

// bindings returns the solution's variables in name order.
func bindings(m map[string]prolog.TermString) []reasoning.Binding {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]reasoning.Binding, 0, len(names))
	for _, name := range names {
		out = append(out, reasoning.Binding{Variable: name, Value: string(m[name])})
	}
	return out
}

func terminate(goal string) string {
	goal = strings.TrimSpace(goal)
	if strings.HasSuffix(goal, ".") {
		return goal
	}
	return goal + "."
}
