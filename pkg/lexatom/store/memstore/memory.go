package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cognicore/lexatom/pkg/lexatom/idmap"
	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/span"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	fragments map[int64]store.Fragment
	atoms     map[int64]store.Atom
	spans     map[int64][]idmap.PersistedSpan // by fragment
	rules     map[int64]store.Rule
	attempts  []store.AttemptRecord
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		nextID:    1,
		fragments: make(map[int64]store.Fragment),
		atoms:     make(map[int64]store.Atom),
		spans:     make(map[int64][]idmap.PersistedSpan),
		rules:     make(map[int64]store.Rule),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", internalerr.ErrNotFound, kind, id)
}

func (s *Store) CreateFragment(ctx context.Context, f store.Fragment) (store.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.ID = s.id()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	s.fragments[f.ID] = f
	return f, nil
}

func (s *Store) GetFragment(ctx context.Context, id int64) (store.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fragments[id]
	if !ok {
		return store.Fragment{}, notFound("fragment", id)
	}
	return f, nil
}

func (s *Store) ListFragments(ctx context.Context) ([]store.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Fragment, 0, len(s.fragments))
	for _, f := range s.fragments {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateAtom(ctx context.Context, a store.Atom) (store.Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fragments[a.FragmentID]; !ok {
		return store.Atom{}, notFound("fragment", a.FragmentID)
	}
	a.ID = s.id()
	s.atoms[a.ID] = a
	return a, nil
}

func (s *Store) GetAtom(ctx context.Context, id int64) (store.Atom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.atoms[id]
	if !ok {
		return store.Atom{}, notFound("atom", id)
	}
	return a, nil
}

func (s *Store) UpdateAtom(ctx context.Context, a store.Atom) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.atoms[a.ID]
	if !ok {
		return notFound("atom", a.ID)
	}
	a.FragmentID = existing.FragmentID
	s.atoms[a.ID] = a
	return nil
}

func (s *Store) ListAtoms(ctx context.Context, fragmentID int64) ([]store.Atom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Atom
	for _, a := range s.atoms {
		if a.FragmentID == fragmentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteAtoms(ctx context.Context, fragmentID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, a := range s.atoms {
		if a.FragmentID == fragmentID {
			delete(s.atoms, id)
			n++
		}
	}
	delete(s.spans, fragmentID)
	return n, nil
}

func (s *Store) ReplaceAtoms(ctx context.Context, fragmentID int64, atoms []store.Atom, spans []span.Span) ([]store.Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fragments[fragmentID]; !ok {
		return nil, notFound("fragment", fragmentID)
	}

	// Ids are assigned up front so a bad span leaves the store untouched.
	saved := make([]store.Atom, len(atoms))
	ids := make([]int64, len(atoms))
	next := s.nextID
	for i, a := range atoms {
		a.ID = next
		a.FragmentID = fragmentID
		next++
		saved[i] = a
		ids[i] = a.ID
	}
	m, err := idmap.Build(ids)
	if err != nil {
		return nil, err
	}
	persisted, err := m.DenormalizeSpans(spans)
	if err != nil {
		return nil, err
	}

	for id, a := range s.atoms {
		if a.FragmentID == fragmentID {
			delete(s.atoms, id)
		}
	}
	for _, a := range saved {
		s.atoms[a.ID] = a
	}
	s.nextID = next
	sortSpans(persisted)
	s.spans[fragmentID] = persisted
	return saved, nil
}

func sortSpans(spans []idmap.PersistedSpan) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		if spans[i].End != spans[j].End {
			return spans[i].End < spans[j].End
		}
		return spans[i].AtomID < spans[j].AtomID
	})
}

func (s *Store) SaveSpans(ctx context.Context, fragmentID int64, spans []idmap.PersistedSpan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sp := range spans {
		a, ok := s.atoms[sp.AtomID]
		if !ok || a.FragmentID != fragmentID {
			return fmt.Errorf("%w: atom %d is not part of fragment %d", internalerr.ErrUnknownAtomReference, sp.AtomID, fragmentID)
		}
	}
	cp := make([]idmap.PersistedSpan, len(spans))
	copy(cp, spans)
	sortSpans(cp)
	s.spans[fragmentID] = cp
	return nil
}

func (s *Store) ListSpans(ctx context.Context, fragmentID int64) ([]idmap.PersistedSpan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.spans[fragmentID]
	if len(src) == 0 {
		return nil, nil
	}
	out := make([]idmap.PersistedSpan, len(src))
	copy(out, src)
	return out, nil
}

func (s *Store) CreateRule(ctx context.Context, r store.Rule) (store.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fragments[r.FragmentID]; !ok {
		return store.Rule{}, notFound("fragment", r.FragmentID)
	}
	r.ID = s.id()
	s.rules[r.ID] = r
	return r, nil
}

func (s *Store) ListRules(ctx context.Context, fragmentID int64) ([]store.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Rule
	for _, r := range s.rules {
		if r.FragmentID == fragmentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteRules(ctx context.Context, fragmentID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.rules {
		if r.FragmentID == fragmentID {
			delete(s.rules, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) ReplaceRules(ctx context.Context, fragmentID int64, rules []store.Rule) ([]store.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fragments[fragmentID]; !ok {
		return nil, notFound("fragment", fragmentID)
	}
	for id, r := range s.rules {
		if r.FragmentID == fragmentID {
			delete(s.rules, id)
		}
	}
	saved := make([]store.Rule, len(rules))
	for i, r := range rules {
		r.ID = s.id()
		r.FragmentID = fragmentID
		s.rules[r.ID] = r
		saved[i] = r
	}
	return saved, nil
}

func (s *Store) AppendAttempt(ctx context.Context, a store.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fragments[a.FragmentID]; !ok {
		return notFound("fragment", a.FragmentID)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, fragmentID int64) ([]store.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.AttemptRecord
	for _, a := range s.attempts {
		if a.FragmentID == fragmentID {
			out = append(out, a)
		}
	}
	return out, nil
}

var _ store.Store = (*Store)(nil)
