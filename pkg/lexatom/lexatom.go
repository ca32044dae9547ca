// Package lexatom formalizes regulation fragments into logic programs:
// atoms are extracted and anchored in the text, rules are drafted by a
// language model and validated against a reasoning engine.
package lexatom

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/lexatom/pkg/lexatom/config"
	"github.com/cognicore/lexatom/pkg/lexatom/ingest"
	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
	"github.com/cognicore/lexatom/pkg/lexatom/validate"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a model conversation.
type Message struct {
	Role    Role
	Content string
}

// Model completes a conversation.
type Model interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Lexatom is the main formalization facade
type Lexatom struct {
	store       store.Store
	model       Model
	reasoner    reasoning.Reasoner
	prompts     *config.Prompts
	log         *zap.Logger
	maxAttempts int
	policy      validate.Policy
}

// Options configures a Lexatom instance
type Options struct {
	Store    store.Store
	Model    Model
	Reasoner reasoning.Reasoner
	Prompts  *config.Prompts // nil means config.DefaultPrompts()
	Logger   *zap.Logger

	MaxAttempts int // zero means validate.DefaultMaxAttempts
	Policy      validate.Policy
}

// New creates a Lexatom instance with the given dependencies
func New(opts Options) *Lexatom {
	l := &Lexatom{
		store:       opts.Store,
		model:       opts.Model,
		reasoner:    opts.Reasoner,
		prompts:     opts.Prompts,
		log:         opts.Logger,
		maxAttempts: opts.MaxAttempts,
		policy:      opts.Policy,
	}
	if l.prompts == nil {
		l.prompts = config.DefaultPrompts()
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	return l
}

// Close cleanly shuts down the Lexatom instance
func (l *Lexatom) Close() error {
	return l.store.Close()
}

// AddFragment validates and stores a fragment.
func (l *Lexatom) AddFragment(ctx context.Context, f ingest.Fragment) (store.Fragment, error) {
	if err := f.Validate(); err != nil {
		return store.Fragment{}, err
	}
	created, err := l.store.CreateFragment(ctx, store.Fragment{Title: f.Title, Content: f.Content})
	if err != nil {
		return store.Fragment{}, fmt.Errorf("store fragment: %w", err)
	}
	l.log.Info("fragment added", zap.Int64("fragment_id", created.ID), zap.String("title", created.Title))
	return created, nil
}

// Fragment returns a stored fragment.
func (l *Lexatom) Fragment(ctx context.Context, id int64) (store.Fragment, error) {
	return l.store.GetFragment(ctx, id)
}

// Fragments lists all stored fragments.
func (l *Lexatom) Fragments(ctx context.Context) ([]store.Fragment, error) {
	return l.store.ListFragments(ctx)
}

// Atoms lists a fragment's atoms.
func (l *Lexatom) Atoms(ctx context.Context, fragmentID int64) ([]store.Atom, error) {
	return l.store.ListAtoms(ctx, fragmentID)
}

// Rules lists a fragment's rules and goals.
func (l *Lexatom) Rules(ctx context.Context, fragmentID int64) ([]store.Rule, error) {
	return l.store.ListRules(ctx, fragmentID)
}

// Attempts lists the logged validation attempts of a fragment.
func (l *Lexatom) Attempts(ctx context.Context, fragmentID int64) ([]store.AttemptRecord, error) {
	return l.store.ListAttempts(ctx, fragmentID)
}

func (l *Lexatom) ask(ctx context.Context, messages []Message) (string, error) {
	if l.model == nil {
		return "", fmt.Errorf("%w: no language model configured", internalerr.ErrInvalidConfig)
	}
	reply, err := l.model.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("model: %w", err)
	}
	return reply, nil
}

func (l *Lexatom) requireReasoner() error {
	if l.reasoner == nil {
		return fmt.Errorf("%w: no reasoner configured", internalerr.ErrInvalidConfig)
	}
	return nil
}
