package lexatom

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/lexatom/pkg/lexatom/exchange"
	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
	"github.com/cognicore/lexatom/pkg/lexatom/validate"
)

// GenerateRules drafts rules and goals for a fragment from its atoms,
// validates them against the reasoner and stores the resulting draft.
// Fragments that already have rules are skipped with a zero Result.
func (l *Lexatom) GenerateRules(ctx context.Context, fragmentID int64) (validate.Result, error) {
	frag, atoms, err := l.ruleInputs(ctx, fragmentID)
	if err != nil {
		return validate.Result{}, err
	}
	existing, err := l.store.ListRules(ctx, fragmentID)
	if err != nil {
		return validate.Result{}, err
	}
	if len(existing) > 0 {
		l.log.Info("rules already exist, skipping generation", zap.Int64("fragment_id", fragmentID))
		return validate.Result{}, nil
	}

	prompt, err := render("rule_extraction", l.prompts.RuleExtraction, fragmentPrompt{
		Content: frag.Content,
		Atoms:   atomListing(atoms),
	})
	if err != nil {
		return validate.Result{}, err
	}
	return l.draftAndValidate(ctx, fragmentID, atoms, prompt)
}

// RegenerateRules replaces a fragment's rules with a revision guided by
// feedback. Existing rules are only removed once the revision passed
// validation.
func (l *Lexatom) RegenerateRules(ctx context.Context, fragmentID int64, feedback string) (validate.Result, error) {
	frag, atoms, err := l.ruleInputs(ctx, fragmentID)
	if err != nil {
		return validate.Result{}, err
	}
	rules, err := l.store.ListRules(ctx, fragmentID)
	if err != nil {
		return validate.Result{}, err
	}
	if len(rules) == 0 {
		return validate.Result{}, fmt.Errorf("%w: fragment %d has no rules to regenerate", internalerr.ErrInvalidInput, fragmentID)
	}

	var previous exchange.RuleExtractionResult
	for _, r := range rules {
		x := exchange.Rule{Definition: r.Definition, Description: r.Description}
		if r.IsGoal {
			previous.Goals = append(previous.Goals, x)
		} else {
			previous.Rules = append(previous.Rules, x)
		}
	}
	prevXML, err := previous.Marshal()
	if err != nil {
		return validate.Result{}, err
	}

	prompt, err := render("rule_regeneration", l.prompts.RuleRegeneration, fragmentPrompt{
		Content:  frag.Content,
		Atoms:    atomListing(atoms),
		Previous: prevXML,
		Feedback: feedback,
	})
	if err != nil {
		return validate.Result{}, err
	}
	return l.draftAndValidate(ctx, fragmentID, atoms, prompt)
}

func (l *Lexatom) ruleInputs(ctx context.Context, fragmentID int64) (store.Fragment, []store.Atom, error) {
	if err := l.requireReasoner(); err != nil {
		return store.Fragment{}, nil, err
	}
	frag, err := l.store.GetFragment(ctx, fragmentID)
	if err != nil {
		return store.Fragment{}, nil, err
	}
	atoms, err := l.store.ListAtoms(ctx, fragmentID)
	if err != nil {
		return store.Fragment{}, nil, err
	}
	if len(atoms) == 0 {
		return store.Fragment{}, nil, fmt.Errorf("%w: fragment %d has no atoms; generate atoms first", internalerr.ErrInvalidInput, fragmentID)
	}
	return frag, atoms, nil
}

// draftAndValidate asks the model for a first draft, runs the validator and
// persists the final draft. Attempts are logged even when validation fails.
func (l *Lexatom) draftAndValidate(ctx context.Context, fragmentID int64, atoms []store.Atom, prompt string) (validate.Result, error) {
	conv := &conversation{l: l, history: []Message{{Role: RoleUser, Content: prompt}}}
	draft, err := conv.draft(ctx)
	if err != nil {
		return validate.Result{}, err
	}

	log := l.log.With(zap.Int64("fragment_id", fragmentID))
	v := &validate.Validator{
		Reasoner:    l.reasoner,
		Drafter:     conv,
		MaxAttempts: l.maxAttempts,
		Policy:      l.policy,
		Logger:      log,
	}
	res, verr := v.Validate(ctx, facts(atoms), draft)

	for _, a := range res.Attempts {
		err := l.store.AppendAttempt(ctx, store.AttemptRecord{
			ID:            a.ID.String(),
			FragmentID:    fragmentID,
			Number:        a.Number,
			KnowledgeBase: a.KnowledgeBase,
			Goal:          a.Goal,
			Status:        string(a.Status),
			Feedback:      a.Feedback,
		})
		if err != nil {
			return res, fmt.Errorf("log attempt %d: %w", a.Number, err)
		}
	}
	if verr != nil {
		log.Warn("rule validation failed",
			zap.Int("attempts", len(res.Attempts)),
			zap.Stringer("policy", l.policy),
			zap.Error(verr))
		return res, verr
	}

	if _, err := l.store.ReplaceRules(ctx, fragmentID, draftRules(fragmentID, res.Draft)); err != nil {
		return res, err
	}
	log.Info("rules saved",
		zap.Stringer("state", res.State),
		zap.Int("attempts", len(res.Attempts)),
		zap.Int("rules", len(res.Draft.Rules)),
		zap.Int("goals", len(res.Draft.Goals)))
	return res, nil
}

// draftRules lists a draft's rules followed by its goals.
func draftRules(fragmentID int64, d validate.Draft) []store.Rule {
	out := make([]store.Rule, 0, len(d.Rules)+len(d.Goals))
	add := func(rules []exchange.Rule, goal bool) {
		for _, r := range rules {
			out = append(out, store.Rule{
				FragmentID:  fragmentID,
				Definition:  r.Definition,
				Description: r.Description,
				IsGoal:      goal,
			})
		}
	}
	add(d.Rules, false)
	add(d.Goals, true)
	return out
}

// conversation keeps the message history of one drafting session so that
// revisions see the original request and every rejected answer.
type conversation struct {
	l       *Lexatom
	history []Message
}

func (c *conversation) draft(ctx context.Context) (validate.Draft, error) {
	reply, err := c.l.ask(ctx, c.history)
	if err != nil {
		return validate.Draft{}, err
	}
	c.history = append(c.history, Message{Role: RoleAssistant, Content: reply})

	res, err := exchange.ParseRules(reply)
	if err != nil {
		return validate.Draft{}, err
	}
	return validate.Draft{Rules: res.Rules, Goals: res.Goals, Raw: reply}, nil
}

// Revise implements validate.Drafter.
func (c *conversation) Revise(ctx context.Context, req validate.RetryRequest) (validate.Draft, error) {
	previous := req.PreviousDraft.Raw
	if previous == "" {
		x := exchange.RuleExtractionResult{Rules: req.PreviousDraft.Rules, Goals: req.PreviousDraft.Goals}
		out, err := x.Marshal()
		if err != nil {
			return validate.Draft{}, err
		}
		previous = out
	}
	prompt, err := render("rule_retry", c.l.prompts.RuleRetry, retryPrompt{
		Instruction: req.Instruction,
		Previous:    previous,
		Diagnostic:  req.Diagnostic,
	})
	if err != nil {
		return validate.Draft{}, err
	}
	c.history = append(c.history, Message{Role: RoleUser, Content: prompt})
	return c.draft(ctx)
}

func facts(atoms []store.Atom) []validate.Fact {
	var out []validate.Fact
	for _, a := range atoms {
		if a.IsFact {
			out = append(out, validate.Fact{Predicate: a.Predicate})
		}
	}
	return out
}

// atomListing renders atoms for rule prompts: facts terminated with a
// period, derived atoms as bare predicates.
func atomListing(atoms []store.Atom) string {
	var fs, others []string
	for _, a := range atoms {
		if a.IsFact {
			fs = append(fs, a.Predicate+".")
		} else {
			others = append(others, a.Predicate)
		}
	}
	return "# Facts (to be asserted directly):\n" + strings.Join(fs, "\n") +
		"\n\n# Other atoms (to be used in rules):\n" + strings.Join(others, "\n")
}
