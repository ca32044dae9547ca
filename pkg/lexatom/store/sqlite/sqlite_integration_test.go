package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognicore/lexatom/pkg/lexatom/idmap"
	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/span"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
)

func openTemp(t *testing.T) store.Store {
	t.Helper()
	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestSQLiteIntegrationBasic tests fragment and atom CRUD
func TestSQLiteIntegrationBasic(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	created := time.Date(2024, 5, 25, 10, 0, 0, 0, time.UTC)
	f, err := st.CreateFragment(ctx, store.Fragment{Title: "Art. 33", Content: "Notify within 72 hours.", CreatedAt: created})
	if err != nil {
		t.Fatalf("CreateFragment: %v", err)
	}

	got, err := st.GetFragment(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFragment: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, created)
	}

	a, err := st.CreateAtom(ctx, store.Atom{FragmentID: f.ID, Predicate: "controller(X)", Description: "X is a controller"})
	if err != nil {
		t.Fatalf("CreateAtom: %v", err)
	}
	a.Predicate = "controller(X, Y)"
	a.IsFact = true
	if err := st.UpdateAtom(ctx, a); err != nil {
		t.Fatalf("UpdateAtom: %v", err)
	}
	updated, err := st.GetAtom(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAtom: %v", err)
	}
	if updated.Predicate != "controller(X, Y)" || !updated.IsFact {
		t.Errorf("unexpected atom: %+v", updated)
	}

	frags, err := st.ListFragments(ctx)
	if err != nil || len(frags) != 1 {
		t.Fatalf("ListFragments: %v, %d fragments", err, len(frags))
	}
}

func TestSQLiteNotFound(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	if _, err := st.GetFragment(ctx, 1); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("GetFragment: expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetAtom(ctx, 1); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("GetAtom: expected ErrNotFound, got %v", err)
	}
	if err := st.UpdateAtom(ctx, store.Atom{ID: 9}); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("UpdateAtom: expected ErrNotFound, got %v", err)
	}
	if _, err := st.CreateRule(ctx, store.Rule{FragmentID: 3, Definition: "a."}); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("CreateRule: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteSpans(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	f, _ := st.CreateFragment(ctx, store.Fragment{Title: "f", Content: "The controller shall notify."})
	other, _ := st.CreateFragment(ctx, store.Fragment{Title: "g", Content: "Other."})
	a, _ := st.CreateAtom(ctx, store.Atom{FragmentID: f.ID, Predicate: "controller(X)"})
	b, _ := st.CreateAtom(ctx, store.Atom{FragmentID: f.ID, Predicate: "notify(X)"})
	foreign, _ := st.CreateAtom(ctx, store.Atom{FragmentID: other.ID, Predicate: "other(X)"})

	spans := []idmap.PersistedSpan{
		{AtomID: b.ID, Start: 21, End: 27},
		{AtomID: a.ID, Start: 4, End: 14},
	}
	if err := st.SaveSpans(ctx, f.ID, spans); err != nil {
		t.Fatalf("SaveSpans: %v", err)
	}
	got, err := st.ListSpans(ctx, f.ID)
	if err != nil {
		t.Fatalf("ListSpans: %v", err)
	}
	if len(got) != 2 || got[0].AtomID != a.ID || got[1].AtomID != b.ID {
		t.Fatalf("expected spans ordered by start, got %+v", got)
	}

	// Replacing keeps nothing of the previous set.
	if err := st.SaveSpans(ctx, f.ID, spans[:1]); err != nil {
		t.Fatalf("SaveSpans replace: %v", err)
	}
	if got, _ := st.ListSpans(ctx, f.ID); len(got) != 1 {
		t.Errorf("expected 1 span after replace, got %d", len(got))
	}

	err = st.SaveSpans(ctx, f.ID, []idmap.PersistedSpan{{AtomID: foreign.ID, Start: 0, End: 5}})
	if !errors.Is(err, internalerr.ErrUnknownAtomReference) {
		t.Fatalf("expected ErrUnknownAtomReference, got %v", err)
	}
	if got, _ := st.ListSpans(ctx, f.ID); len(got) != 1 {
		t.Errorf("failed save must not touch existing spans, got %d", len(got))
	}

	n, err := st.DeleteAtoms(ctx, f.ID)
	if err != nil || n != 2 {
		t.Fatalf("DeleteAtoms: %v, deleted %d", err, n)
	}
	if got, _ := st.ListSpans(ctx, f.ID); len(got) != 0 {
		t.Errorf("expected spans to cascade, got %+v", got)
	}
}

func TestSQLiteRulesAndAttempts(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	f, _ := st.CreateFragment(ctx, store.Fragment{Title: "f", Content: "c"})

	if _, err := st.CreateRule(ctx, store.Rule{FragmentID: f.ID, Definition: "must_notify(C) :- controller(C).", Description: "d"}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if _, err := st.CreateRule(ctx, store.Rule{FragmentID: f.ID, Definition: "compliant(C) :- must_notify(C).", IsGoal: true}); err != nil {
		t.Fatalf("CreateRule goal: %v", err)
	}
	rules, err := st.ListRules(ctx, f.ID)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 2 || rules[0].IsGoal || !rules[1].IsGoal {
		t.Fatalf("unexpected rules: %+v", rules)
	}

	for i, id := range []string{"01HZX0000000000000000000A1", "01HZX0000000000000000000A2"} {
		err := st.AppendAttempt(ctx, store.AttemptRecord{
			ID: id, FragmentID: f.ID, Number: i + 1,
			KnowledgeBase: "a.", Goal: "a", Status: "error", Feedback: "syntax error",
		})
		if err != nil {
			t.Fatalf("AppendAttempt: %v", err)
		}
	}
	attempts, err := st.ListAttempts(ctx, f.ID)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 2 || attempts[0].Number != 1 || attempts[1].Feedback != "syntax error" {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}

	n, err := st.DeleteRules(ctx, f.ID)
	if err != nil || n != 2 {
		t.Fatalf("DeleteRules: %v, deleted %d", err, n)
	}
}

func TestReplaceAtomsSQLite(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	f, _ := st.CreateFragment(ctx, store.Fragment{Title: "f", Content: "The controller shall notify."})
	old, _ := st.CreateAtom(ctx, store.Atom{FragmentID: f.ID, Predicate: "old(X)"})
	if err := st.SaveSpans(ctx, f.ID, []idmap.PersistedSpan{{AtomID: old.ID, Start: 0, End: 3}}); err != nil {
		t.Fatalf("SaveSpans: %v", err)
	}

	// A span naming a third atom fails the whole replacement.
	_, err := st.ReplaceAtoms(ctx, f.ID,
		[]store.Atom{{Predicate: "controller(X)"}, {Predicate: "notify(X)"}},
		[]span.Span{{AtomID: 3, Start: 4, End: 14}})
	if !errors.Is(err, internalerr.ErrUnknownAtomReference) {
		t.Fatalf("expected ErrUnknownAtomReference, got %v", err)
	}
	atoms, _ := st.ListAtoms(ctx, f.ID)
	if len(atoms) != 1 || atoms[0].ID != old.ID {
		t.Fatalf("failed replace must keep the old atoms, got %+v", atoms)
	}
	if spans, _ := st.ListSpans(ctx, f.ID); len(spans) != 1 || spans[0].AtomID != old.ID {
		t.Fatalf("failed replace must keep the old spans, got %+v", spans)
	}

	saved, err := st.ReplaceAtoms(ctx, f.ID,
		[]store.Atom{{Predicate: "controller(X)"}, {Predicate: "notify(X)"}},
		[]span.Span{{AtomID: 2, Start: 21, End: 27}, {AtomID: 1, Start: 4, End: 14}})
	if err != nil {
		t.Fatalf("ReplaceAtoms: %v", err)
	}
	if len(saved) != 2 || saved[0].FragmentID != f.ID || saved[0].ID == old.ID {
		t.Fatalf("unexpected saved atoms %+v", saved)
	}
	spans, _ := st.ListSpans(ctx, f.ID)
	want := []idmap.PersistedSpan{{AtomID: saved[0].ID, Start: 4, End: 14}, {AtomID: saved[1].ID, Start: 21, End: 27}}
	if len(spans) != 2 || spans[0] != want[0] || spans[1] != want[1] {
		t.Errorf("spans = %+v, want %+v", spans, want)
	}

	if _, err := st.ReplaceAtoms(ctx, 999, nil, nil); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing fragment, got %v", err)
	}
}

func TestReplaceRulesSQLite(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	f, _ := st.CreateFragment(ctx, store.Fragment{Title: "f", Content: "c"})
	if _, err := st.CreateRule(ctx, store.Rule{FragmentID: f.ID, Definition: "old :- true."}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	saved, err := st.ReplaceRules(ctx, f.ID, []store.Rule{
		{Definition: "a(X) :- b(X)."},
		{Definition: "g(X) :- a(X).", IsGoal: true},
	})
	if err != nil {
		t.Fatalf("ReplaceRules: %v", err)
	}
	rules, _ := st.ListRules(ctx, f.ID)
	if len(rules) != 2 || rules[0].ID != saved[0].ID || !rules[1].IsGoal {
		t.Fatalf("unexpected rules %+v", rules)
	}

	if _, err := st.ReplaceRules(ctx, 999, nil); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing fragment, got %v", err)
	}
}
