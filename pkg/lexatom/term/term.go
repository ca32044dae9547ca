// Package term parses logic-predicate strings into terms and rewrites them
// into wildcarded probes that a Prolog engine can check structurally.
package term

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
)

// Term is either a Variable leaf or a Compound.
type Term interface {
	String() string
	isTerm()
}

// Variable is an argument without parentheses. Its text is kept for
// diagnostics only; wildcarding replaces it with a placeholder.
type Variable struct {
	Text string
}

func (Variable) isTerm() {}

func (v Variable) String() string { return v.Text }

// Compound is a named term with ordered arguments.
type Compound struct {
	Name string
	Args []Term
}

func (Compound) isTerm() {}

func (c Compound) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return c.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Counter assigns placeholder names in increasing order. One Counter is
// shared by every predicate of a single knowledge-base build so that
// placeholders are unique within it. It must not be shared across builds.
type Counter struct {
	next        int
	placeholder func(int) string
}

// DefaultPlaceholder names fact placeholders: _X1, _X2, ...
func DefaultPlaceholder(i int) string { return "_X" + strconv.Itoa(i) }

// GoalPlaceholder names goal placeholders so they appear in solutions: X1, X2, ...
func GoalPlaceholder(i int) string { return "X" + strconv.Itoa(i) }

// NewCounter returns a counter starting at start. A nil placeholder
// function selects DefaultPlaceholder.
func NewCounter(start int, placeholder func(int) string) *Counter {
	if placeholder == nil {
		placeholder = DefaultPlaceholder
	}
	return &Counter{next: start, placeholder: placeholder}
}

// Peek returns the index the next placeholder will receive.
func (c *Counter) Peek() int { return c.next }

func (c *Counter) take() string {
	name := c.placeholder(c.next)
	c.next++
	return name
}

// Parse parses a predicate string.
//
// Without '(' the whole string is a Variable. Otherwise the text before the
// first '(' is the name and the last ')' closes the argument list; anything
// after it is ignored. Arguments are split on commas at depth 0.
func Parse(text string) (Term, error) {
	return parseTokens(text, Tokenize(text), 0, len(text))
}

func parseTokens(src string, tokens []Token, from, to int) (Term, error) {
	open, close, err := bounds(src, tokens)
	if err != nil {
		return nil, err
	}
	if open < 0 {
		return Variable{Text: strings.TrimSpace(src[from:to])}, nil
	}

	name := strings.TrimSpace(src[from:tokens[open].Pos])
	groups, err := splitArgs(src, tokens[open+1:close])
	if err != nil {
		return nil, err
	}

	args := make([]Term, 0, len(groups))
	for _, g := range groups {
		if len(g) == 0 {
			args = append(args, Variable{})
			continue
		}
		arg, err := parseTokens(src, g, g[0].Pos, g[len(g)-1].End())
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return Compound{Name: name, Args: args}, nil
}

// bounds locates the first '(' and the last ')' in tokens. open is -1 when
// there is no '('.
func bounds(src string, tokens []Token) (open, close int, err error) {
	open, close = -1, -1
	for i, t := range tokens {
		if t.Kind == LParen {
			open = i
			break
		}
	}
	if open < 0 {
		return -1, -1, nil
	}
	for i := len(tokens) - 1; i > open; i-- {
		if tokens[i].Kind == RParen {
			close = i
			break
		}
	}
	if close < 0 {
		return 0, 0, fmt.Errorf("%w: missing closing bracket in %q", internalerr.ErrMalformedTerm, src)
	}
	return open, close, nil
}

// splitArgs splits the tokens between the outer brackets on commas at
// depth 0. A trailing empty argument is dropped, so "p()" and "p(a,)" have
// zero and one argument respectively.
func splitArgs(src string, interior []Token) ([][]Token, error) {
	var (
		groups  [][]Token
		current []Token
		depth   int
	)
	for _, t := range interior {
		switch t.Kind {
		case LParen:
			depth++
		case RParen:
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced ')' at offset %d in %q", internalerr.ErrMalformedTerm, t.Pos, src)
			}
		case Comma:
			if depth == 0 {
				groups = append(groups, trimGroup(current))
				current = nil
				continue
			}
		}
		current = append(current, t)
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced '(' in %q", internalerr.ErrMalformedTerm, src)
	}
	if last := trimGroup(current); len(last) > 0 {
		groups = append(groups, last)
	}
	return groups, nil
}

// trimGroup drops whitespace-only identifier tokens from both ends.
func trimGroup(g []Token) []Token {
	for len(g) > 0 && g[0].Kind == Ident && strings.TrimSpace(g[0].Text) == "" {
		g = g[1:]
	}
	for len(g) > 0 && g[len(g)-1].Kind == Ident && strings.TrimSpace(g[len(g)-1].Text) == "" {
		g = g[:len(g)-1]
	}
	return g
}

// Wildcard renders t with every Variable replaced by the counter's next
// placeholder, depth-first and left to right.
func Wildcard(t Term, c *Counter) string {
	switch v := t.(type) {
	case Variable:
		return c.take()
	case Compound:
		parts := make([]string, len(v.Args))
		for i, a := range v.Args {
			parts[i] = Wildcard(a, c)
		}
		return v.Name + "(" + strings.Join(parts, ", ") + ")"
	default:
		return ""
	}
}

// Bind renders t with every Variable named in values replaced by its value.
// Unbound variables are kept.
func Bind(t Term, values map[string]string) string {
	switch v := t.(type) {
	case Variable:
		if val, ok := values[v.Text]; ok {
			return val
		}
		return v.Text
	case Compound:
		parts := make([]string, len(v.Args))
		for i, a := range v.Args {
			parts[i] = Bind(a, values)
		}
		return v.Name + "(" + strings.Join(parts, ", ") + ")"
	default:
		return ""
	}
}

// WildcardPredicate parses text and wildcards it with c.
func WildcardPredicate(text string, c *Counter) (string, error) {
	t, err := Parse(text)
	if err != nil {
		return "", err
	}
	return Wildcard(t, c), nil
}

// Arity returns the number of top-level arguments of a predicate string.
// Only the outermost argument list is inspected.
func Arity(text string) (int, error) {
	tokens := Tokenize(text)
	open, close, err := bounds(text, tokens)
	if err != nil {
		return 0, err
	}
	if open < 0 {
		return 0, nil
	}
	groups, err := splitArgs(text, tokens[open+1:close])
	if err != nil {
		return 0, err
	}
	return len(groups), nil
}
