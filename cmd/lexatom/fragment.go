package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cognicore/lexatom/pkg/lexatom"
	"github.com/cognicore/lexatom/pkg/lexatom/ingest"
)

func (a *app) fragmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fragment",
		Short: "Add, list and show regulation fragments",
	}

	var title, file string
	var isHTML, isMarkdown bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Store a fragment read from a text, HTML or Markdown file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := formatText
			switch {
			case isHTML && isMarkdown:
				return fmt.Errorf("--html and --markdown are mutually exclusive")
			case isHTML:
				format = formatHTML
			case isMarkdown:
				format = formatMarkdown
			}
			f, err := readFragment(file, title, format)
			if err != nil {
				return err
			}
			return a.withLexatom(cmd, func(ctx context.Context, l *lexatom.Lexatom) error {
				created, err := l.AddFragment(ctx, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", created.ID, created.Title)
				return nil
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "fragment title (HTML input falls back to the document title)")
	add.Flags().StringVar(&file, "file", "", "input file")
	add.Flags().BoolVar(&isHTML, "html", false, "extract the text from HTML")
	add.Flags().BoolVar(&isMarkdown, "markdown", false, "extract the text from Markdown")
	_ = add.MarkFlagRequired("file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored fragments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLexatom(cmd, func(ctx context.Context, l *lexatom.Lexatom) error {
				frags, err := l.Fragments(ctx)
				if err != nil {
					return err
				}
				for _, f := range frags {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", f.ID, f.Title)
				}
				return nil
			})
		},
	}

	var annotated bool
	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a fragment, optionally with its atoms marked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withLexatom(cmd, func(ctx context.Context, l *lexatom.Lexatom) error {
				if annotated {
					text, err := l.AnnotatedFragment(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), text)
					return nil
				}
				f, err := l.Fragment(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n\n%s\n", f.Title, f.Content)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&annotated, "annotated", false, "mark atom spans in the text")

	cmd.AddCommand(add, list, show)
	return cmd
}

type inputFormat int

const (
	formatText inputFormat = iota
	formatHTML
	formatMarkdown
)

func readFragment(path, title string, format inputFormat) (ingest.Fragment, error) {
	if format == formatText {
		data, err := os.ReadFile(path)
		if err != nil {
			return ingest.Fragment{}, err
		}
		return ingest.FromText(title, string(data)), nil
	}

	fh, err := os.Open(path)
	if err != nil {
		return ingest.Fragment{}, err
	}
	defer fh.Close()

	var f ingest.Fragment
	if format == formatMarkdown {
		f, err = ingest.FragmentFromMarkdown(fh)
	} else {
		f, err = ingest.FragmentFromHTML(fh)
	}
	if err != nil {
		return ingest.Fragment{}, err
	}
	if title != "" {
		f.Title = title
	}
	return f, nil
}
