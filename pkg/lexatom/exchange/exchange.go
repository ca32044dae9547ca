// Package exchange encodes and decodes the XML documents exchanged with the
// language model during atom and rule extraction.
package exchange

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/span"
)

// ExtractedAtom is an atom as written by the model. ID is a local id, valid
// only within one extraction round-trip.
type ExtractedAtom struct {
	ID          int    `xml:"id,attr"`
	Predicate   string `xml:"predicate"`
	Description string `xml:"description"`
	IsFact      bool   `xml:"is_fact"`
}

// AtomExtractionResult is
// <result><annotated>…</annotated><atoms><atom id="N">…</atom></atoms></result>.
type AtomExtractionResult struct {
	XMLName   xml.Name        `xml:"result"`
	Annotated Annotated       `xml:"annotated"`
	Atoms     []ExtractedAtom `xml:"atoms>atom"`
}

// Rule is a rule or goal definition with its description.
type Rule struct {
	Definition  string `xml:"definition"`
	Description string `xml:"description"`
}

// RuleExtractionResult is
// <result><rules><rule>…</rule></rules><goals><rule>…</rule></goals></result>.
type RuleExtractionResult struct {
	XMLName xml.Name `xml:"result"`
	Rules   []Rule   `xml:"rules>rule"`
	Goals   []Rule   `xml:"goals>rule"`
}

// UnmarshalXML accepts <goal> as well as <rule> children inside <goals>.
func (r *RuleExtractionResult) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Rules     []Rule `xml:"rules>rule"`
		Goals     []Rule `xml:"goals>rule"`
		GoalAlias []Rule `xml:"goals>goal"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	r.XMLName = start.Name
	r.Rules = raw.Rules
	r.Goals = append(raw.Goals, raw.GoalAlias...)
	return nil
}

// Annotated is fragment text carrying span markers. Text outside markers is
// stored unescaped; markers are kept in their canonical form.
type Annotated string

var markerToken = regexp.MustCompile(`<atom id="(\d+)">|</atom>`)

// UnmarshalXML rebuilds the annotated text from mixed content.
func (a *Annotated) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			if t.Name.Local != "atom" {
				continue
			}
			id, err := atomID(t)
			if err != nil {
				return err
			}
			b.WriteString(span.OpenMarker(id))
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				*a = Annotated(strings.TrimSpace(b.String()))
				return nil
			}
			if t.Name.Local == "atom" {
				b.WriteString(span.CloseMarker())
			}
		}
	}
}

// MarshalXML writes text segments as character data and markers as
// <atom> elements.
func (a Annotated) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	s := string(a)
	cursor := 0
	for _, m := range markerToken.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > cursor {
			if err := e.EncodeToken(xml.CharData(s[cursor:m[0]])); err != nil {
				return err
			}
		}
		atom := xml.Name{Local: "atom"}
		if m[2] >= 0 {
			err := e.EncodeToken(xml.StartElement{Name: atom, Attr: []xml.Attr{{Name: xml.Name{Local: "id"}, Value: s[m[2]:m[3]]}}})
			if err != nil {
				return err
			}
		} else if err := e.EncodeToken(xml.EndElement{Name: atom}); err != nil {
			return err
		}
		cursor = m[1]
	}
	if cursor < len(s) {
		if err := e.EncodeToken(xml.CharData(s[cursor:])); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func atomID(t xml.StartElement) (int, error) {
	for _, attr := range t.Attr {
		if attr.Name.Local == "id" {
			id, err := strconv.Atoi(strings.TrimSpace(attr.Value))
			if err != nil {
				return 0, fmt.Errorf("%w: atom id %q", internalerr.ErrInvalidInput, attr.Value)
			}
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: atom marker without id", internalerr.ErrInvalidInput)
}

// ParseAtoms decodes an atom extraction reply. Prose or markdown fences
// around the <result> element are ignored.
func ParseAtoms(reply string) (*AtomExtractionResult, error) {
	var res AtomExtractionResult
	if err := decode(reply, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ParseRules decodes a rule extraction reply.
func ParseRules(reply string) (*RuleExtractionResult, error) {
	var res RuleExtractionResult
	if err := decode(reply, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Marshal encodes the result without indentation; indenting would change
// the annotated text.
func (r *AtomExtractionResult) Marshal() (string, error) {
	out, err := xml.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Marshal encodes the result with indentation.
func (r *RuleExtractionResult) Marshal() (string, error) {
	out, err := xml.MarshalIndent(struct {
		XMLName xml.Name `xml:"result"`
		Rules   []Rule   `xml:"rules>rule"`
		Goals   []Rule   `xml:"goals>rule"`
	}{Rules: r.Rules, Goals: r.Goals}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Spans returns the spans marked in the annotated text.
func (r *AtomExtractionResult) Spans() []span.Span {
	return span.Extract(string(r.Annotated))
}

// DenseSpans returns the marked spans with atom ids replaced by the
// position of the atom in Atoms, starting at 1. Duplicate atom ids are
// invalid input; a marker naming no listed atom is an unknown reference.
func (r *AtomExtractionResult) DenseSpans() ([]span.Span, error) {
	position := make(map[int]int, len(r.Atoms))
	for i, a := range r.Atoms {
		if _, dup := position[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate atom id %d", internalerr.ErrInvalidInput, a.ID)
		}
		position[a.ID] = i + 1
	}

	spans := r.Spans()
	for i, s := range spans {
		local, ok := position[s.AtomID]
		if !ok {
			return nil, fmt.Errorf("%w: marker references atom %d", internalerr.ErrUnknownAtomReference, s.AtomID)
		}
		spans[i].AtomID = local
	}
	return spans, nil
}

func decode(reply string, v any) error {
	return decodeElement(reply, "result", v)
}

// decodeElement decodes the span from the first <root to the last </root>.
func decodeElement(reply, root string, v any) error {
	closer := "</" + root + ">"
	start := strings.Index(reply, "<"+root)
	end := strings.LastIndex(reply, closer)
	if start < 0 || end < start {
		return fmt.Errorf("%w: reply contains no <%s> element", internalerr.ErrInvalidInput, root)
	}

	d := xml.NewDecoder(bytes.NewReader([]byte(reply[start : end+len(closer)])))
	d.Strict = false
	if err := d.Decode(v); err != nil {
		return fmt.Errorf("%w: decode result: %v", internalerr.ErrInvalidInput, err)
	}
	return nil
}
