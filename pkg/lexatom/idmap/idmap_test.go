package idmap

import (
	"errors"
	"testing"

	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/span"
)

func TestBuildDense(t *testing.T) {
	m, err := Build([]int64{42, 7, 1001})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 ids, got %d", m.Len())
	}

	for local, persisted := range map[int]int64{1: 42, 2: 7, 3: 1001} {
		got, err := m.Persisted(local)
		if err != nil || got != persisted {
			t.Errorf("Persisted(%d) = %d, %v; want %d", local, got, err, persisted)
		}
		back, err := m.Local(persisted)
		if err != nil || back != local {
			t.Errorf("Local(%d) = %d, %v; want %d", persisted, back, err, local)
		}
	}
}

func TestBuildDuplicate(t *testing.T) {
	if _, err := Build([]int64{1, 2, 1}); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUnknownReference(t *testing.T) {
	m, _ := Build([]int64{10, 11})

	if _, err := m.Local(12); !errors.Is(err, internalerr.ErrUnknownAtomReference) {
		t.Errorf("Local: expected ErrUnknownAtomReference, got %v", err)
	}
	for _, local := range []int{0, 3, -1} {
		if _, err := m.Persisted(local); !errors.Is(err, internalerr.ErrUnknownAtomReference) {
			t.Errorf("Persisted(%d): expected ErrUnknownAtomReference, got %v", local, err)
		}
	}
}

func TestSpanRoundTrip(t *testing.T) {
	m, _ := Build([]int64{300, 200})
	in := []PersistedSpan{
		{AtomID: 200, Start: 0, End: 4},
		{AtomID: 300, Start: 10, End: 16},
	}

	local, err := m.NormalizeSpans(in)
	if err != nil {
		t.Fatalf("NormalizeSpans: %v", err)
	}
	if local[0].AtomID != 2 || local[1].AtomID != 1 {
		t.Fatalf("unexpected local ids: %+v", local)
	}

	back, err := m.DenormalizeSpans(local)
	if err != nil {
		t.Fatalf("DenormalizeSpans: %v", err)
	}
	for i := range in {
		if back[i] != in[i] {
			t.Errorf("span %d: got %+v, want %+v", i, back[i], in[i])
		}
	}
}

func TestDenormalizeUnknown(t *testing.T) {
	m, _ := Build([]int64{5})
	_, err := m.DenormalizeSpans([]span.Span{{AtomID: 2, Start: 0, End: 1}})
	if !errors.Is(err, internalerr.ErrUnknownAtomReference) {
		t.Fatalf("expected ErrUnknownAtomReference, got %v", err)
	}
}
