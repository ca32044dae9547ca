// Package reasoningtest provides a scripted reasoning.Reasoner for tests.
package reasoningtest

import (
	"context"
	"sync"

	"github.com/cognicore/lexatom/pkg/lexatom/reasoning"
)

// Call records one Execute invocation.
type Call struct {
	KnowledgeBase string
	Goal          string
}

// Reply is the scripted answer to one call.
type Reply struct {
	Outcomes []reasoning.Outcome
	Err      error
}

// Scripted replays replies in order. Once the script is exhausted the last
// reply is repeated; an empty script answers with a single success.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// New returns a Scripted reasoner with the given replies.
func New(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Outcomes is shorthand for a successful reply.
func Outcomes(o ...reasoning.Outcome) Reply {
	return Reply{Outcomes: o}
}

// Execute implements reasoning.Reasoner.
func (s *Scripted) Execute(ctx context.Context, knowledgeBase, goal string) ([]reasoning.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{KnowledgeBase: knowledgeBase, Goal: goal})
	if len(s.replies) == 0 {
		return []reasoning.Outcome{reasoning.Success()}, nil
	}
	idx := len(s.calls) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	r := s.replies[idx]
	return r.Outcomes, r.Err
}

// Calls returns a copy of the recorded calls.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}
