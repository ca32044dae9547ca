package lexatom

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/lexatom/pkg/lexatom/exchange"
	"github.com/cognicore/lexatom/pkg/lexatom/idmap"
	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/span"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
	"github.com/cognicore/lexatom/pkg/lexatom/term"
	"github.com/cognicore/lexatom/pkg/lexatom/validate"
)

// GenerateAtoms extracts atoms and their spans for a fragment. Fragments
// that already have atoms are left alone and their atoms returned.
func (l *Lexatom) GenerateAtoms(ctx context.Context, fragmentID int64) ([]store.Atom, error) {
	frag, err := l.store.GetFragment(ctx, fragmentID)
	if err != nil {
		return nil, err
	}
	existing, err := l.store.ListAtoms(ctx, fragmentID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		l.log.Info("atoms already exist, skipping generation", zap.Int64("fragment_id", fragmentID))
		return existing, nil
	}

	prompt, err := render("atom_extraction", l.prompts.AtomExtraction, fragmentPrompt{Content: frag.Content})
	if err != nil {
		return nil, err
	}
	reply, err := l.ask(ctx, []Message{{Role: RoleUser, Content: prompt}})
	if err != nil {
		return nil, err
	}
	res, err := exchange.ParseAtoms(reply)
	if err != nil {
		return nil, err
	}
	return l.saveExtraction(ctx, frag, res)
}

// RegenerateAtoms replaces a fragment's atoms with a revision guided by
// feedback. The model sees the current atoms with ids renumbered 1..n and
// the fragment annotated with their spans.
func (l *Lexatom) RegenerateAtoms(ctx context.Context, fragmentID int64, feedback string) ([]store.Atom, error) {
	frag, err := l.store.GetFragment(ctx, fragmentID)
	if err != nil {
		return nil, err
	}
	current, err := l.extraction(ctx, frag)
	if err != nil {
		return nil, err
	}
	if len(current.Atoms) == 0 {
		return nil, fmt.Errorf("%w: fragment %d has no atoms to regenerate", internalerr.ErrInvalidInput, fragmentID)
	}
	previous, err := current.Marshal()
	if err != nil {
		return nil, err
	}

	prompt, err := render("atom_regeneration", l.prompts.AtomRegeneration, fragmentPrompt{
		Content:  frag.Content,
		Previous: previous,
		Feedback: feedback,
	})
	if err != nil {
		return nil, err
	}
	reply, err := l.ask(ctx, []Message{{Role: RoleUser, Content: prompt}})
	if err != nil {
		return nil, err
	}
	res, err := exchange.ParseAtoms(reply)
	if err != nil {
		return nil, err
	}
	return l.saveExtraction(ctx, frag, res)
}

// AnnotatedFragment returns the fragment text with its atoms marked,
// numbered 1..n in atom order.
func (l *Lexatom) AnnotatedFragment(ctx context.Context, fragmentID int64) (string, error) {
	frag, err := l.store.GetFragment(ctx, fragmentID)
	if err != nil {
		return "", err
	}
	res, err := l.extraction(ctx, frag)
	if err != nil {
		return "", err
	}
	return string(res.Annotated), nil
}

// UpdateAtomPredicate replaces an atom's predicate after checking that the
// reasoner accepts it as a clause.
func (l *Lexatom) UpdateAtomPredicate(ctx context.Context, atomID int64, predicate string) (store.Atom, error) {
	if err := l.requireReasoner(); err != nil {
		return store.Atom{}, err
	}
	a, err := l.store.GetAtom(ctx, atomID)
	if err != nil {
		return store.Atom{}, err
	}
	if err := validate.CheckPredicate(ctx, l.reasoner, predicate); err != nil {
		return store.Atom{}, fmt.Errorf("check predicate %q: %w", predicate, err)
	}
	a.Predicate = predicate
	if err := l.store.UpdateAtom(ctx, a); err != nil {
		return store.Atom{}, err
	}
	l.log.Info("atom predicate updated", zap.Int64("atom_id", atomID), zap.String("predicate", predicate))
	return a, nil
}

// extraction rebuilds the exchange document for a fragment's stored atoms.
func (l *Lexatom) extraction(ctx context.Context, frag store.Fragment) (*exchange.AtomExtractionResult, error) {
	atoms, err := l.store.ListAtoms(ctx, frag.ID)
	if err != nil {
		return nil, err
	}
	spans, err := l.store.ListSpans(ctx, frag.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(atoms))
	for i, a := range atoms {
		ids[i] = a.ID
	}
	m, err := idmap.Build(ids)
	if err != nil {
		return nil, err
	}
	local, err := m.NormalizeSpans(spans)
	if err != nil {
		return nil, err
	}

	res := &exchange.AtomExtractionResult{
		Annotated: exchange.Annotated(span.Annotate(frag.Content, local)),
		Atoms:     make([]exchange.ExtractedAtom, len(atoms)),
	}
	for i, a := range atoms {
		res.Atoms[i] = exchange.ExtractedAtom{
			ID:          i + 1,
			Predicate:   a.Predicate,
			Description: a.Description,
			IsFact:      a.IsFact,
		}
	}
	return res, nil
}

// saveExtraction replaces the fragment's atoms and spans with those of res,
// mapping the model's ids to the new persisted ids. The annotated text must
// be the fragment text once markers are removed.
func (l *Lexatom) saveExtraction(ctx context.Context, frag store.Fragment, res *exchange.AtomExtractionResult) ([]store.Atom, error) {
	for _, a := range res.Atoms {
		if _, err := term.Parse(a.Predicate); err != nil {
			return nil, fmt.Errorf("atom %d: %w", a.ID, err)
		}
	}
	spans, err := res.DenseSpans()
	if err != nil {
		return nil, err
	}
	if stripped := span.Strip(string(res.Annotated)); stripped != frag.Content {
		return nil, fmt.Errorf("%w: annotated text differs from fragment %d", internalerr.ErrInvalidInput, frag.ID)
	}

	atoms := make([]store.Atom, len(res.Atoms))
	for i, a := range res.Atoms {
		atoms[i] = store.Atom{
			FragmentID:  frag.ID,
			Predicate:   a.Predicate,
			Description: a.Description,
			IsFact:      a.IsFact,
		}
	}
	saved, err := l.store.ReplaceAtoms(ctx, frag.ID, atoms, spans)
	if err != nil {
		return nil, err
	}

	l.log.Info("atoms saved",
		zap.Int64("fragment_id", frag.ID),
		zap.Int("atoms", len(saved)),
		zap.Int("spans", len(spans)))
	return saved, nil
}
