package term

// Kind identifies a lexical token in a predicate string.
type Kind int

const (
	Ident Kind = iota // any run of characters other than '(', ')' and ','
	LParen
	RParen
	Comma
)

func (k Kind) String() string {
	switch k {
	case Ident:
		return "ident"
	case LParen:
		return "("
	case RParen:
		return ")"
	case Comma:
		return ","
	default:
		return "unknown"
	}
}

// Token is a lexical unit with its byte offset in the source string.
type Token struct {
	Kind Kind
	Text string
	Pos  int
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Pos + len(t.Text)
}

// Tokenize splits text into a flat token stream. Whitespace is kept inside
// Ident tokens so that source offsets can be recovered exactly.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	flush := func(end int) {
		if start >= 0 {
			tokens = append(tokens, Token{Kind: Ident, Text: text[start:end], Pos: start})
			start = -1
		}
	}

	for i := 0; i < len(text); i++ {
		var kind Kind
		switch text[i] {
		case '(':
			kind = LParen
		case ')':
			kind = RParen
		case ',':
			kind = Comma
		default:
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
		tokens = append(tokens, Token{Kind: kind, Text: text[i : i+1], Pos: i})
	}
	flush(len(text))

	return tokens
}
