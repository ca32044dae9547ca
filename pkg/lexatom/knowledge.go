package lexatom

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
	"github.com/cognicore/lexatom/pkg/lexatom/term"
)

// KnowledgeBase renders a fragment's program: the sorted dynamic
// declarations of its atoms followed by its sorted rule definitions.
func (l *Lexatom) KnowledgeBase(ctx context.Context, fragmentID int64) (string, error) {
	atoms, err := l.store.ListAtoms(ctx, fragmentID)
	if err != nil {
		return "", err
	}
	rules, err := l.store.ListRules(ctx, fragmentID)
	if err != nil {
		return "", err
	}
	return formatKnowledgeBase(atoms, rules)
}

func formatKnowledgeBase(atoms []store.Atom, rules []store.Rule) (string, error) {
	decls := make([]string, 0, len(atoms))
	for _, a := range atoms {
		d, err := term.DynamicDeclaration(a.Predicate, a.IsFact)
		if err != nil {
			return "", fmt.Errorf("atom %d: %w", a.ID, err)
		}
		decls = append(decls, d)
	}
	sort.Strings(decls)

	defs := make([]string, 0, len(rules))
	for _, r := range rules {
		defs = append(defs, r.Definition)
	}
	sort.Strings(defs)

	return strings.Join(decls, "\n") + "\n" + strings.Join(defs, "\n"), nil
}

// Example is the outcome of running a fragment's first goal against a set
// of example facts.
type Example struct {
	KnowledgeBase string
	Goal          string
	Status        reasoning.Status
	Outcomes      []reasoning.Outcome
}

// RunExample appends the newline-separated example facts, sorted, to the
// fragment's knowledge base and queries its first goal with X1, X2, ...
// in place of the goal's arguments.
func (l *Lexatom) RunExample(ctx context.Context, fragmentID int64, facts string) (Example, error) {
	if err := l.requireReasoner(); err != nil {
		return Example{}, err
	}
	atoms, err := l.store.ListAtoms(ctx, fragmentID)
	if err != nil {
		return Example{}, err
	}
	rules, err := l.store.ListRules(ctx, fragmentID)
	if err != nil {
		return Example{}, err
	}

	var goalDef string
	for _, r := range rules {
		if r.IsGoal {
			goalDef = r.Definition
			break
		}
	}
	if goalDef == "" {
		return Example{}, fmt.Errorf("%w: fragment %d has no goal", internalerr.ErrInvalidInput, fragmentID)
	}
	goal, err := term.WildcardPredicate(term.Head(goalDef), term.NewCounter(1, term.GoalPlaceholder))
	if err != nil {
		return Example{}, err
	}

	kb, err := formatKnowledgeBase(atoms, rules)
	if err != nil {
		return Example{}, err
	}
	lines := strings.Split(facts, "\n")
	sort.Strings(lines)
	kb += "\n" + strings.Join(lines, "\n")

	status, outcomes, err := reasoning.ExecutePredicate(ctx, l.reasoner, kb, goal)
	if err != nil {
		return Example{}, err
	}
	return Example{KnowledgeBase: kb, Goal: goal, Status: status, Outcomes: outcomes}, nil
}
