package store

import (
	"context"
	"time"

	"github.com/cognicore/lexatom/pkg/lexatom/idmap"
	"github.com/cognicore/lexatom/pkg/lexatom/span"
)

// Store is the persistence interface for fragments and everything derived
// from them. Lookups of missing records return internalerr.ErrNotFound.
type Store interface {
	Close() error

	// Fragments
	CreateFragment(ctx context.Context, f Fragment) (Fragment, error)
	GetFragment(ctx context.Context, id int64) (Fragment, error)
	ListFragments(ctx context.Context) ([]Fragment, error)

	// Atoms; deleting a fragment's atoms also deletes their spans
	CreateAtom(ctx context.Context, a Atom) (Atom, error)
	GetAtom(ctx context.Context, id int64) (Atom, error)
	UpdateAtom(ctx context.Context, a Atom) error
	ListAtoms(ctx context.Context, fragmentID int64) ([]Atom, error)
	DeleteAtoms(ctx context.Context, fragmentID int64) (int, error)
	// ReplaceAtoms swaps a fragment's atoms and spans in one step. Span atom
	// ids are 1-based positions in atoms. On error nothing changes.
	ReplaceAtoms(ctx context.Context, fragmentID int64, atoms []Atom, spans []span.Span) ([]Atom, error)

	// Spans, replaced as a whole per fragment
	SaveSpans(ctx context.Context, fragmentID int64, spans []idmap.PersistedSpan) error
	ListSpans(ctx context.Context, fragmentID int64) ([]idmap.PersistedSpan, error)

	// Rules & goals
	CreateRule(ctx context.Context, r Rule) (Rule, error)
	ListRules(ctx context.Context, fragmentID int64) ([]Rule, error)
	DeleteRules(ctx context.Context, fragmentID int64) (int, error)
	// ReplaceRules swaps a fragment's rules and goals in one step.
	ReplaceRules(ctx context.Context, fragmentID int64, rules []Rule) ([]Rule, error)

	// Validation attempt log
	AppendAttempt(ctx context.Context, a AttemptRecord) error
	ListAttempts(ctx context.Context, fragmentID int64) ([]AttemptRecord, error)
}

// Fragment is a piece of regulatory text.
type Fragment struct {
	ID        int64
	Title     string
	Content   string
	CreatedAt time.Time
}

// Atom is a predicate extracted from a fragment.
type Atom struct {
	ID          int64
	FragmentID  int64
	Predicate   string
	Description string
	IsFact      bool
}

// Rule is a clause definition. Goals are rules with IsGoal set.
type Rule struct {
	ID          int64
	FragmentID  int64
	Definition  string
	Description string
	IsGoal      bool
}

// AttemptRecord is one logged validation attempt.
type AttemptRecord struct {
	ID            string // ULID
	FragmentID    int64
	Number        int
	KnowledgeBase string
	Goal          string
	Status        string
	Feedback      string
	CreatedAt     time.Time
}
