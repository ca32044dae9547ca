package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cognicore/lexatom/pkg/lexatom/term"
)

// termCmd groups offline helpers that need neither store nor model.
func termCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "term",
		Short: "Inspect predicate strings",
		// No config or logger needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}

	arity := &cobra.Command{
		Use:   "arity PREDICATE",
		Short: "Print the number of top-level arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := term.Arity(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%d\n", term.Name(args[0]), n)
			return nil
		},
	}

	var goal bool
	wildcard := &cobra.Command{
		Use:   "wildcard PREDICATE",
		Short: "Replace every argument leaf with a fresh variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			placeholder := term.DefaultPlaceholder
			if goal {
				placeholder = term.GoalPlaceholder
			}
			out, err := term.WildcardPredicate(args[0], term.NewCounter(1, placeholder))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	wildcard.Flags().BoolVar(&goal, "goal", false, "use X1, X2, ... as in goal queries")

	cmd.AddCommand(arity, wildcard)
	return cmd
}
