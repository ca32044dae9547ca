// Package idmap renumbers persisted atom identifiers into a dense 1-based
// sequence for model consumption and maps model output back.
//
// A Map is built per call from the current atom set and is never cached:
// atom sets change between regeneration rounds.
package idmap

import (
	"fmt"

	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/span"
)

// Map is a bijection between persisted ids and local ids 1..n.
type Map struct {
	toLocal     map[int64]int
	toPersisted []int64
}

// Build numbers ids 1..n in the given order.
func Build(ids []int64) (*Map, error) {
	m := &Map{
		toLocal:     make(map[int64]int, len(ids)),
		toPersisted: make([]int64, 0, len(ids)),
	}
	for _, id := range ids {
		if _, dup := m.toLocal[id]; dup {
			return nil, fmt.Errorf("%w: duplicate atom id %d", internalerr.ErrInvalidInput, id)
		}
		m.toPersisted = append(m.toPersisted, id)
		m.toLocal[id] = len(m.toPersisted)
	}
	return m, nil
}

// Len returns the number of mapped ids.
func (m *Map) Len() int { return len(m.toPersisted) }

// Local returns the local id for a persisted id.
func (m *Map) Local(persisted int64) (int, error) {
	local, ok := m.toLocal[persisted]
	if !ok {
		return 0, fmt.Errorf("%w: persisted id %d", internalerr.ErrUnknownAtomReference, persisted)
	}
	return local, nil
}

// Persisted returns the persisted id for a local id.
func (m *Map) Persisted(local int) (int64, error) {
	if local < 1 || local > len(m.toPersisted) {
		return 0, fmt.Errorf("%w: local id %d", internalerr.ErrUnknownAtomReference, local)
	}
	return m.toPersisted[local-1], nil
}

// PersistedSpan is a span whose atom is referenced by its persisted id.
type PersistedSpan struct {
	AtomID int64
	Start  int
	End    int
}

// NormalizeSpans rewrites persisted spans to local ids.
func (m *Map) NormalizeSpans(in []PersistedSpan) ([]span.Span, error) {
	out := make([]span.Span, 0, len(in))
	for _, s := range in {
		local, err := m.Local(s.AtomID)
		if err != nil {
			return nil, err
		}
		out = append(out, span.Span{AtomID: local, Start: s.Start, End: s.End})
	}
	return out, nil
}

// DenormalizeSpans rewrites spans returned by the model to persisted ids.
func (m *Map) DenormalizeSpans(in []span.Span) ([]PersistedSpan, error) {
	out := make([]PersistedSpan, 0, len(in))
	for _, s := range in {
		id, err := m.Persisted(s.AtomID)
		if err != nil {
			return nil, err
		}
		out = append(out, PersistedSpan{AtomID: id, Start: s.Start, End: s.End})
	}
	return out, nil
}
