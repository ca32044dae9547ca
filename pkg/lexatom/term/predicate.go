package term

import (
	"fmt"
	"strings"
)

// Name returns the functor of a predicate string: the text before the first
// '(' or the whole string when there is none.
func Name(text string) string {
	if i := strings.IndexByte(text, '('); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return strings.TrimSpace(text)
}

// Head returns the head of a clause definition (the text before ":-"),
// without a trailing period.
func Head(definition string) string {
	head, _, _ := strings.Cut(definition, ":-")
	return strings.TrimSuffix(strings.TrimSpace(head), ".")
}

// MaskFacts wildcards every predicate with one shared counter and
// terminates each with a period.
func MaskFacts(predicates []string, c *Counter) ([]string, error) {
	out := make([]string, 0, len(predicates))
	for _, p := range predicates {
		w, err := WildcardPredicate(p, c)
		if err != nil {
			return nil, err
		}
		out = append(out, w+".")
	}
	return out, nil
}

// DynamicDeclaration renders the ":- dynamic name/arity." directive for a
// predicate. Derived predicates are emitted commented out so that the engine
// still reports missing rule definitions for them.
func DynamicDeclaration(predicate string, isFact bool) (string, error) {
	arity, err := Arity(predicate)
	if err != nil {
		return "", err
	}
	if !isFact {
		return fmt.Sprintf("%%:- dynamic %s/%d. %% %s; This is a derived predicate, not a fact.", Name(predicate), arity, predicate), nil
	}
	return fmt.Sprintf(":- dynamic %s/%d. %% %s", Name(predicate), arity, predicate), nil
}
