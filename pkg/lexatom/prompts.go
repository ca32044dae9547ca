package lexatom

import (
	"strings"
	"text/template"
)

type fragmentPrompt struct {
	Content  string
	Atoms    string
	Previous string
	Feedback string
}

type retryPrompt struct {
	Instruction string
	Previous    string
	Diagnostic  string
}

func render(name, text string, data any) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
