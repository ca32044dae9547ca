// Package span converts between plain regulation text and the tagged form
// in which <atom id="N">…</atom> markers show which substring instantiates
// which atom.
//
// Offsets are rune (code point) indexes into the untagged text, so text with
// umlauts or section signs round-trips exactly.
package span

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Span is a half-open range [Start, End) of the original text attributed to
// an atom. Spans are values; a modified span is a new Span.
type Span struct {
	AtomID int `json:"atom_id"`
	Start  int `json:"start"`
	End    int `json:"end"`
}

// Len returns the number of runes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

const closeMarker = "</atom>"

var markerPattern = regexp.MustCompile(`(?s)<atom id="(\d+)">(.*?)</atom>`)

// OpenMarker returns the opening marker for an atom id.
func OpenMarker(id int) string {
	return `<atom id="` + strconv.Itoa(id) + `">`
}

// CloseMarker returns the closing marker.
func CloseMarker() string { return closeMarker }

// Annotate wraps each span of text in atom markers. Spans are processed in
// ascending Start order; the input slice is not modified. Offsets outside the
// text are clamped to it.
func Annotate(text string, spans []Span) string {
	if len(spans) == 0 {
		return text
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	runes := []rune(text)
	clamp := func(i int) int {
		if i < 0 {
			return 0
		}
		if i > len(runes) {
			return len(runes)
		}
		return i
	}

	var b strings.Builder
	b.Grow(len(text) + len(sorted)*(len(closeMarker)+16))

	cursor := 0
	for _, s := range sorted {
		start, end := clamp(s.Start), clamp(s.End)
		if end < start {
			end = start
		}
		if start > cursor {
			b.WriteString(string(runes[cursor:start]))
		}
		b.WriteString(OpenMarker(s.AtomID))
		b.WriteString(string(runes[start:end]))
		b.WriteString(closeMarker)
		cursor = end
	}
	if cursor < len(runes) {
		b.WriteString(string(runes[cursor:]))
	}
	return b.String()
}

// Offsets carries the number of marker runes consumed so far. Subtracting
// it from a position in the annotated text yields the position in the
// original text.
type Offsets struct {
	Overhead int
}

// Step translates one marker occurrence, given in rune positions of the
// annotated text, into original-text bounds and returns the updated fold.
func (o Offsets) Step(matchStart, matchLen, contentLen int) (start, end int, next Offsets) {
	start = matchStart - o.Overhead
	end = start + contentLen
	next = Offsets{Overhead: o.Overhead + matchLen - contentLen}
	return start, end, next
}

// Extract returns the spans marked in annotated text, in document order.
// Markers do not nest; the first closing marker ends a span.
func Extract(annotated string) []Span {
	matches := markerPattern.FindAllStringSubmatchIndex(annotated, -1)
	if len(matches) == 0 {
		return nil
	}

	var (
		spans   = make([]Span, 0, len(matches))
		offsets Offsets
		idx     runeIndex
	)
	for _, m := range matches {
		matchStart := idx.at(annotated, m[0])
		matchLen := utf8.RuneCountInString(annotated[m[0]:m[1]])
		contentLen := utf8.RuneCountInString(annotated[m[4]:m[5]])

		var start, end int
		start, end, offsets = offsets.Step(matchStart, matchLen, contentLen)

		id, err := strconv.Atoi(annotated[m[2]:m[3]])
		if err != nil {
			// The digit run overflows int. The marker still counts toward
			// the offsets of later spans.
			continue
		}
		spans = append(spans, Span{AtomID: id, Start: start, End: end})
	}
	return spans
}

// Strip removes all atom markers, keeping their content.
func Strip(annotated string) string {
	return markerPattern.ReplaceAllString(annotated, "${2}")
}

// runeIndex converts increasing byte offsets into rune offsets without
// rescanning the prefix each time.
type runeIndex struct {
	bytePos int
	runePos int
}

func (r *runeIndex) at(s string, bytePos int) int {
	r.runePos += utf8.RuneCountInString(s[r.bytePos:bytePos])
	r.bytePos = bytePos
	return r.runePos
}
