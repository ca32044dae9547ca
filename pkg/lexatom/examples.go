package lexatom

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/lexatom/pkg/lexatom/exchange"
	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/term"
	"github.com/cognicore/lexatom/pkg/lexatom/validate"
)

// ExampleScenario is a generated example: a description and the facts that
// describe it, ready for RunExample.
type ExampleScenario struct {
	Description string
	Facts       []string
}

// Program joins the facts one per line.
func (e ExampleScenario) Program() string {
	return strings.Join(e.Facts, "\n")
}

type examplePrompt struct {
	KnowledgeBase string
	Atoms         string
}

// GenerateExamples asks the model for example scenarios of a fragment's
// program. Replies that use a predicate which is not one of the fragment's
// atoms are sent back with a diagnostic, up to the configured attempt limit.
func (l *Lexatom) GenerateExamples(ctx context.Context, fragmentID int64) ([]ExampleScenario, error) {
	atoms, err := l.store.ListAtoms(ctx, fragmentID)
	if err != nil {
		return nil, err
	}
	if len(atoms) == 0 {
		return nil, fmt.Errorf("%w: fragment %d has no atoms", internalerr.ErrInvalidInput, fragmentID)
	}
	rules, err := l.store.ListRules(ctx, fragmentID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: fragment %d has no rules", internalerr.ErrInvalidInput, fragmentID)
	}

	kb, err := formatKnowledgeBase(atoms, rules)
	if err != nil {
		return nil, err
	}
	prompt, err := render("example_generation", l.prompts.ExampleGeneration, examplePrompt{
		KnowledgeBase: kb,
		Atoms:         atomListing(atoms),
	})
	if err != nil {
		return nil, err
	}

	valid := make(map[string]bool, len(atoms))
	for _, a := range atoms {
		valid[strings.TrimSpace(a.Predicate)] = true
	}

	log := l.log.With(zap.Int64("fragment_id", fragmentID))
	maxAttempts := l.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = validate.DefaultMaxAttempts
	}
	history := []Message{{Role: RoleUser, Content: prompt}}
	for attempt := 1; ; attempt++ {
		reply, err := l.ask(ctx, history)
		if err != nil {
			return nil, err
		}
		history = append(history, Message{Role: RoleAssistant, Content: reply})

		scenarios, perr := scenariosFromReply(reply, valid)
		if perr == nil {
			log.Info("examples generated", zap.Int("examples", len(scenarios)), zap.Int("attempts", attempt))
			return scenarios, nil
		}
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("%w: after %d attempts: %v", internalerr.ErrRetryCeilingReached, attempt, perr)
		}
		log.Info("example reply rejected, retrying", zap.Int("attempt", attempt), zap.Error(perr))

		retry, err := render("example_retry", l.prompts.ExampleRetry, retryPrompt{Diagnostic: perr.Error()})
		if err != nil {
			return nil, err
		}
		history = append(history, Message{Role: RoleUser, Content: retry})
	}
}

// scenariosFromReply decodes a reply and turns every fact into a ground
// clause. Facts must use one of the valid predicates verbatim.
func scenariosFromReply(reply string, valid map[string]bool) ([]ExampleScenario, error) {
	set, err := exchange.ParseExamples(reply)
	if err != nil {
		return nil, err
	}
	if len(set.Examples) == 0 {
		return nil, fmt.Errorf("%w: reply contains no examples", internalerr.ErrInvalidInput)
	}

	var invalid []string
	out := make([]ExampleScenario, 0, len(set.Examples))
	for _, ex := range set.Examples {
		sc := ExampleScenario{Description: ex.Description}
		for _, f := range ex.Facts {
			pred := strings.TrimSpace(f.Predicate)
			if !valid[pred] {
				invalid = append(invalid, fmt.Sprintf("invalid predicate %q in example %q", pred, ex.Description))
				continue
			}
			t, err := term.Parse(pred)
			if err != nil {
				return nil, err
			}
			sc.Facts = append(sc.Facts, term.Bind(t, f.Bindings())+".")
		}
		out = append(out, sc)
	}
	if len(invalid) > 0 {
		allowed := make([]string, 0, len(valid))
		for p := range valid {
			allowed = append(allowed, p)
		}
		sort.Strings(allowed)
		return nil, fmt.Errorf("%w: %s; valid predicates are: %s",
			internalerr.ErrInvalidInput, strings.Join(invalid, ", "), strings.Join(allowed, ", "))
	}
	return out, nil
}
