// Package reasoning talks to a symbolic reasoning engine through a narrow
// request/response contract: a knowledge base plus a goal in, a flat list
// of outcomes back.
package reasoning

import (
	"context"
	"errors"
	"fmt"

	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
)

// Status is the result class of an outcome or of a whole goal.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
)

// severity orders statuses for worst-of aggregation.
func (s Status) severity() int {
	switch s {
	case StatusError:
		return 2
	case StatusFailure:
		return 1
	default:
		return 0
	}
}

// Binding is one variable/value pair of a solution.
type Binding struct {
	Variable string `json:"variable"`
	Value    string `json:"value"`
}

// Outcome is a single interpreted engine event.
//
// A Success carries the bindings of one solution, a Failure carries nothing
// and an Error carries the engine's diagnostic in Message.
type Outcome struct {
	Status   Status    `json:"status"`
	Bindings []Binding `json:"answers"`
	Message  string    `json:"message,omitempty"`
}

// Success returns a success outcome.
func Success(bindings ...Binding) Outcome {
	return Outcome{Status: StatusSuccess, Bindings: bindings}
}

// Failure returns a failure outcome.
func Failure() Outcome {
	return Outcome{Status: StatusFailure}
}

// Error returns an error outcome carrying msg.
func Error(msg string) Outcome {
	return Outcome{Status: StatusError, Message: msg}
}

// Reasoner executes a goal against a knowledge base.
//
// Implementations return a non-nil error only when no outcome list could be
// produced. A protocol violation must wrap internalerr.ErrProtocolViolation.
type Reasoner interface {
	Execute(ctx context.Context, knowledgeBase, goal string) ([]Outcome, error)
}

// ProtocolViolationError reports an engine response that does not follow
// the event protocol. It is fatal and never retried.
type ProtocolViolationError struct {
	Kind   string
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%s: %s", internalerr.ErrProtocolViolation, e.Reason)
	}
	return fmt.Sprintf("%s: event %q: %s", internalerr.ErrProtocolViolation, e.Kind, e.Reason)
}

func (e *ProtocolViolationError) Unwrap() error { return internalerr.ErrProtocolViolation }

// Aggregate returns the worst status across outcomes, with
// error > failure > success. An empty list is a success.
func Aggregate(outcomes []Outcome) Status {
	worst := StatusSuccess
	for _, o := range outcomes {
		if o.Status.severity() > worst.severity() {
			worst = o.Status
		}
	}
	return worst
}

// FirstMessage returns the message of the first error outcome, if any.
func FirstMessage(outcomes []Outcome) string {
	for _, o := range outcomes {
		if o.Status == StatusError {
			return o.Message
		}
	}
	return ""
}

// ExecutePredicate runs goal against knowledgeBase and aggregates the
// outcomes.
//
// Transport failures and expired contexts surface as a single Error outcome
// so that callers can retry them like any other engine error. Protocol
// violations are returned as errors.
func ExecutePredicate(ctx context.Context, r Reasoner, knowledgeBase, goal string) (Status, []Outcome, error) {
	outcomes, err := r.Execute(ctx, knowledgeBase, goal)
	if err != nil {
		if errors.Is(err, internalerr.ErrProtocolViolation) {
			return "", nil, err
		}
		outcomes = []Outcome{Error(err.Error())}
	}
	return Aggregate(outcomes), outcomes, nil
}
