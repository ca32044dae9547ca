// Package ingest turns source documents into regulation fragments.
package ingest

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
)

// Fragment is a normalized piece of regulatory text ready to be stored.
type Fragment struct {
	Title   string
	Content string
}

// Validate checks if the fragment has required fields
func (f *Fragment) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("%w: fragment title is required", internalerr.ErrInvalidInput)
	}
	if strings.TrimSpace(f.Content) == "" {
		return fmt.Errorf("%w: fragment content is required", internalerr.ErrInvalidInput)
	}
	return nil
}

// FromText builds a fragment from plain text, normalizing line endings and
// trimming surrounding blank space.
func FromText(title, text string) Fragment {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return Fragment{Title: strings.TrimSpace(title), Content: strings.TrimSpace(text)}
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Tr: true, atom.Br: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
	atom.Dt: true, atom.Dd: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

var skipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Head: true,
}

// FragmentFromHTML extracts a fragment from an HTML document. The title is
// taken from <title>, falling back to the first <h1>. Each block element
// becomes one line with its whitespace collapsed.
func FragmentFromHTML(r io.Reader) (Fragment, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Fragment{}, fmt.Errorf("parse html: %w", err)
	}

	var (
		title, heading string
		lines          []string
		line           strings.Builder
	)
	flush := func() {
		if s := strings.Join(strings.Fields(line.String()), " "); s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Title && title == "":
				title = strings.TrimSpace(textOf(n))
				return
			case n.DataAtom == atom.H1 && heading == "":
				heading = strings.Join(strings.Fields(textOf(n)), " ")
			case skipped[n.DataAtom]:
				// <title> lives in <head>, so look for it before skipping.
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && c.DataAtom == atom.Title && title == "" {
						title = strings.TrimSpace(textOf(c))
					}
				}
				return
			}
		}
		if n.Type == html.TextNode {
			line.WriteString(n.Data)
			line.WriteByte(' ')
		}

		block := n.Type == html.ElementNode && blocks[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(doc)
	flush()

	if title == "" {
		title = heading
	}
	return Fragment{Title: title, Content: strings.Join(lines, "\n")}, nil
}

func textOf(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}
