package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/lexatom/pkg/lexatom"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning"
)

func (a *app) kbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kb ID",
		Short: "Print a fragment's knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
			kb, err := l.KnowledgeBase(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, kb)
			return nil
		}),
	}
}

func (a *app) checkCmd() *cobra.Command {
	var factsPath string
	cmd := &cobra.Command{
		Use:   "check ID",
		Short: "Run a fragment's first goal against example facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(factsPath)
			if err != nil {
				return err
			}
			facts := strings.TrimSpace(string(data))
			return a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
				ex, err := l.RunExample(ctx, id, facts)
				if err != nil {
					return err
				}
				printExample(w, ex)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&factsPath, "facts", "", "file with one example fact per line")
	_ = cmd.MarkFlagRequired("facts")
	return cmd
}

func printExample(w io.Writer, ex lexatom.Example) {
	fmt.Fprintf(w, "goal: %s\nstatus: %s\n", ex.Goal, ex.Status)
	for _, o := range ex.Outcomes {
		switch o.Status {
		case reasoning.StatusSuccess:
			parts := make([]string, len(o.Bindings))
			for i, b := range o.Bindings {
				parts[i] = b.Variable + " = " + b.Value
			}
			if len(parts) == 0 {
				fmt.Fprintln(w, "  true")
				continue
			}
			fmt.Fprintf(w, "  %s\n", strings.Join(parts, ", "))
		case reasoning.StatusError:
			fmt.Fprintf(w, "  error: %s\n", o.Message)
		}
	}
}
