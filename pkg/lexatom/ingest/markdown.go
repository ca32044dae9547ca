package ingest

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gomarkdown/markdown"
)

// FragmentFromMarkdown renders Markdown to HTML and extracts it like
// FragmentFromHTML. The first level-one heading becomes the title.
func FragmentFromMarkdown(r io.Reader) (Fragment, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return Fragment{}, fmt.Errorf("read markdown: %w", err)
	}
	return FragmentFromHTML(bytes.NewReader(markdown.ToHTML(src, nil, nil)))
}
