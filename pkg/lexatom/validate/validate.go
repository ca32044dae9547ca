// Package validate checks drafted rule sets against the reasoning engine and
// asks the drafter for revisions while the engine reports errors.
package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/lexatom/pkg/lexatom/exchange"
	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning"
	"github.com/cognicore/lexatom/pkg/lexatom/term"
)

// DefaultMaxAttempts bounds the number of engine submissions per Validate.
const DefaultMaxAttempts = 4

// DefaultInstruction is sent to the drafter with every retry request.
const DefaultInstruction = "The reasoning engine rejected the rules above. " +
	"Fix the syntax errors and return the complete corrected result in the same format without changing its meaning."

// State is the position of a draft in the validation lifecycle.
type State int

const (
	Drafting State = iota
	Submitted
	Retrying
	Accepted
	Exhausted
)

func (s State) String() string {
	switch s {
	case Drafting:
		return "drafting"
	case Submitted:
		return "submitted"
	case Retrying:
		return "retrying"
	case Accepted:
		return "accepted"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Policy decides what Validate returns once every attempt ended in an error.
type Policy int

const (
	// AcceptLastDraft returns the last draft with State Exhausted and a nil
	// error. A warning is logged.
	AcceptLastDraft Policy = iota
	// FailOnExhaustion returns ErrRetryCeilingReached.
	FailOnExhaustion
)

func (p Policy) String() string {
	switch p {
	case AcceptLastDraft:
		return "accept_last_draft"
	case FailOnExhaustion:
		return "fail_on_exhaustion"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "accept_last_draft", "accept":
		return AcceptLastDraft, nil
	case "fail_on_exhaustion", "fail":
		return FailOnExhaustion, nil
	default:
		return 0, fmt.Errorf("%w: unknown validation policy %q", internalerr.ErrInvalidConfig, s)
	}
}

// Draft is a candidate rule set. Raw holds the reply it was parsed from.
type Draft struct {
	Rules []exchange.Rule
	Goals []exchange.Rule
	Raw   string
}

// Fact is a predicate asserted as true in the knowledge base.
type Fact struct {
	Predicate string
}

// RetryRequest is what the drafter receives when a draft was rejected.
type RetryRequest struct {
	Attempt       int
	PreviousDraft Draft
	Diagnostic    string
	Instruction   string
}

// Drafter produces revised drafts.
type Drafter interface {
	Revise(ctx context.Context, req RetryRequest) (Draft, error)
}

// DrafterFunc adapts a function to Drafter.
type DrafterFunc func(ctx context.Context, req RetryRequest) (Draft, error)

// Revise calls f.
func (f DrafterFunc) Revise(ctx context.Context, req RetryRequest) (Draft, error) {
	return f(ctx, req)
}

// Attempt is one recorded engine submission.
type Attempt struct {
	ID            ulid.ULID
	Number        int
	KnowledgeBase string
	Goal          string
	Status        reasoning.Status
	Outcomes      []reasoning.Outcome
	Feedback      string
}

// Result is the outcome of Validate.
type Result struct {
	State    State
	Draft    Draft
	Attempts []Attempt
}

// Validator runs the draft, submit, retry loop. The zero value needs a
// Reasoner and, for retries, a Drafter.
type Validator struct {
	Reasoner    reasoning.Reasoner
	Drafter     Drafter
	MaxAttempts int
	Policy      Policy
	Instruction string
	Logger      *zap.Logger

	// IDs generates attempt ids. Defaults to ulid.Make.
	IDs func() ulid.ULID
}

func (v *Validator) maxAttempts() int {
	if v.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return v.MaxAttempts
}

func (v *Validator) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}

func (v *Validator) newID() ulid.ULID {
	if v.IDs == nil {
		return ulid.Make()
	}
	return v.IDs()
}

func (v *Validator) instruction() string {
	if v.Instruction == "" {
		return DefaultInstruction
	}
	return v.Instruction
}

// Validate submits draft together with facts and retries while the engine
// answers with an error.
//
// A goal that parses but does not hold (failure) is accepted: only engine
// errors are treated as syntax problems. Malformed terms, protocol
// violations and drafter errors are returned immediately.
func (v *Validator) Validate(ctx context.Context, facts []Fact, draft Draft) (Result, error) {
	if v.Reasoner == nil {
		return Result{}, fmt.Errorf("%w: validator has no reasoner", internalerr.ErrInvalidConfig)
	}
	log := v.logger()
	limit := v.maxAttempts()
	res := Result{State: Drafting, Draft: draft}

	for n := 1; n <= limit; n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		kb, err := BuildKnowledgeBase(facts, res.Draft)
		if err != nil {
			return res, err
		}
		goal, err := MaskedGoal(res.Draft)
		if err != nil {
			return res, err
		}

		res.State = Submitted
		status, outcomes, err := reasoning.ExecutePredicate(ctx, v.Reasoner, kb, goal)
		if err != nil {
			return res, err
		}

		attempt := Attempt{
			ID:            v.newID(),
			Number:        n,
			KnowledgeBase: kb,
			Goal:          goal,
			Status:        status,
			Outcomes:      outcomes,
			Feedback:      reasoning.FirstMessage(outcomes),
		}
		res.Attempts = append(res.Attempts, attempt)
		log.Debug("validation attempt",
			zap.Stringer("id", attempt.ID),
			zap.Int("attempt", n),
			zap.String("status", string(status)),
			zap.String("goal", goal))

		if status != reasoning.StatusError {
			res.State = Accepted
			return res, nil
		}
		if n == limit {
			break
		}

		if v.Drafter == nil {
			return res, fmt.Errorf("%w: validator has no drafter to revise with", internalerr.ErrInvalidConfig)
		}
		res.State = Retrying
		log.Info("draft rejected, requesting revision",
			zap.Int("attempt", n),
			zap.Int("remaining", limit-n),
			zap.String("diagnostic", attempt.Feedback))

		revised, err := v.Drafter.Revise(ctx, RetryRequest{
			Attempt:       n + 1,
			PreviousDraft: res.Draft,
			Diagnostic:    attempt.Feedback,
			Instruction:   v.instruction(),
		})
		if err != nil {
			return res, fmt.Errorf("revise draft: %w", err)
		}
		res.Draft = revised
	}

	res.State = Exhausted
	last := res.Attempts[len(res.Attempts)-1]
	if v.Policy == FailOnExhaustion {
		return res, fmt.Errorf("%w after %d attempts: %s", internalerr.ErrRetryCeilingReached, len(res.Attempts), last.Feedback)
	}
	log.Warn("retry ceiling reached, keeping last draft",
		zap.Int("attempts", len(res.Attempts)),
		zap.String("diagnostic", last.Feedback))
	return res, nil
}

// BuildKnowledgeBase renders the wildcarded facts followed by the rule and
// goal definitions of draft, one clause per line.
func BuildKnowledgeBase(facts []Fact, draft Draft) (string, error) {
	preds := make([]string, len(facts))
	for i, f := range facts {
		preds[i] = f.Predicate
	}
	masked, err := term.MaskFacts(preds, term.NewCounter(1, nil))
	if err != nil {
		return "", err
	}

	lines := masked
	for _, r := range draft.Rules {
		lines = append(lines, r.Definition)
	}
	for _, g := range draft.Goals {
		lines = append(lines, g.Definition)
	}
	return strings.Join(lines, "\n"), nil
}

// MaskedGoal returns the head of the first goal with its variables replaced
// by X1, X2, ...
func MaskedGoal(draft Draft) (string, error) {
	if len(draft.Goals) == 0 {
		return "", fmt.Errorf("%w: draft has no goals", internalerr.ErrInvalidInput)
	}
	head := term.Head(draft.Goals[0].Definition)
	if head == "" {
		return "", fmt.Errorf("%w: first goal has an empty head", internalerr.ErrInvalidInput)
	}
	return term.WildcardPredicate(head, term.NewCounter(1, term.GoalPlaceholder))
}

// CheckPredicate verifies that predicate loads as a clause. The predicate is
// wildcarded, consulted as a fact and then queried.
func CheckPredicate(ctx context.Context, r reasoning.Reasoner, predicate string) error {
	p, err := term.WildcardPredicate(predicate, term.NewCounter(1, nil))
	if err != nil {
		return err
	}
	status, outcomes, err := reasoning.ExecutePredicate(ctx, r, p+".", p)
	if err != nil {
		return err
	}
	if status == reasoning.StatusError {
		return fmt.Errorf("%w: %s", internalerr.ErrReasoningError, reasoning.FirstMessage(outcomes))
	}
	return nil
}

// IsFatal reports whether err must not be retried by callers.
func IsFatal(err error) bool {
	return errors.Is(err, internalerr.ErrMalformedTerm) ||
		errors.Is(err, internalerr.ErrProtocolViolation) ||
		errors.Is(err, internalerr.ErrUnknownAtomReference)
}
