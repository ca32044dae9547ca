package exchange

import (
	"encoding/xml"
	"strings"
)

// Argument binds one variable of a fact's predicate.
type Argument struct {
	Variable string `xml:"variable"`
	Value    string `xml:"value"`
}

// ExampleFact instantiates an atom predicate, e.g. controller(C) with C = acme.
type ExampleFact struct {
	Predicate string     `xml:"predicate"`
	Arguments []Argument `xml:"arguments>argument"`
}

// Bindings returns the arguments as a variable -> value map.
func (f ExampleFact) Bindings() map[string]string {
	m := make(map[string]string, len(f.Arguments))
	for _, a := range f.Arguments {
		m[strings.TrimSpace(a.Variable)] = strings.TrimSpace(a.Value)
	}
	return m
}

// Example is a described scenario given as facts.
type Example struct {
	Description string        `xml:"description"`
	Facts       []ExampleFact `xml:"facts>fact"`
}

// ExampleSet is <examples><example>…</example></examples>.
type ExampleSet struct {
	XMLName  xml.Name  `xml:"examples"`
	Examples []Example `xml:"example"`
}

// ParseExamples decodes an example generation reply. Text around the
// <examples> element is ignored.
func ParseExamples(reply string) (*ExampleSet, error) {
	var set ExampleSet
	if err := decodeElement(reply, "examples", &set); err != nil {
		return nil, err
	}
	for i := range set.Examples {
		set.Examples[i].Description = strings.TrimSpace(set.Examples[i].Description)
	}
	return &set, nil
}
