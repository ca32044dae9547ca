package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cognicore/lexatom/pkg/lexatom"
)

func (a *app) examplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Generate example scenarios for a fragment's program",
	}

	var run bool
	generate := &cobra.Command{
		Use:   "generate ID",
		Short: "Ask the model for example fact sets, optionally running each one",
		Args:  cobra.ExactArgs(1),
		RunE: a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
			scenarios, err := l.GenerateExamples(ctx, id)
			if err != nil {
				return err
			}
			for i, sc := range scenarios {
				if i > 0 {
					fmt.Fprintln(w)
				}
				fmt.Fprintf(w, "%% %s\n%s\n", sc.Description, sc.Program())
				if !run {
					continue
				}
				ex, err := l.RunExample(ctx, id, sc.Program())
				if err != nil {
					return err
				}
				printExample(w, ex)
			}
			return nil
		}),
	}
	generate.Flags().BoolVar(&run, "run", false, "run the fragment's first goal against each example")

	cmd.AddCommand(generate)
	return cmd
}
