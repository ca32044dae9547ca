package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cognicore/lexatom/pkg/lexatom"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
	"github.com/cognicore/lexatom/pkg/lexatom/validate"
)

func (a *app) rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Draft, validate and list rules",
	}

	report := func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64, res validate.Result) error {
		for _, at := range res.Attempts {
			fmt.Fprintf(w, "attempt %d (%s): %s", at.Number, at.ID, at.Status)
			if at.Feedback != "" {
				fmt.Fprintf(w, ": %s", at.Feedback)
			}
			fmt.Fprintln(w)
		}
		if len(res.Attempts) > 0 {
			fmt.Fprintf(w, "state: %s\n", res.State)
		}
		rules, err := l.Rules(ctx, id)
		if err != nil {
			return err
		}
		printRules(w, rules)
		return nil
	}

	list := &cobra.Command{
		Use:   "list ID",
		Short: "List a fragment's rules and goals",
		Args:  cobra.ExactArgs(1),
		RunE: a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
			rules, err := l.Rules(ctx, id)
			if err != nil {
				return err
			}
			printRules(w, rules)
			return nil
		}),
	}

	generate := &cobra.Command{
		Use:   "generate ID",
		Short: "Draft and validate rules for a fragment that has none",
		Args:  cobra.ExactArgs(1),
		RunE: a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
			res, err := l.GenerateRules(ctx, id)
			if err != nil {
				return err
			}
			return report(ctx, l, w, id, res)
		}),
	}

	var feedback string
	regenerate := &cobra.Command{
		Use:   "regenerate ID",
		Short: "Replace a fragment's rules with a validated revision",
		Args:  cobra.ExactArgs(1),
		RunE: a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
			res, err := l.RegenerateRules(ctx, id, feedback)
			if err != nil {
				return err
			}
			return report(ctx, l, w, id, res)
		}),
	}
	regenerate.Flags().StringVar(&feedback, "feedback", "", "reviewer feedback for the model")

	attempts := &cobra.Command{
		Use:   "attempts ID",
		Short: "Show the validation attempt log",
		Args:  cobra.ExactArgs(1),
		RunE: a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
			log, err := l.Attempts(ctx, id)
			if err != nil {
				return err
			}
			for _, at := range log {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", at.ID, at.Number, at.Status, at.Goal, at.Feedback)
			}
			return nil
		}),
	}

	cmd.AddCommand(list, generate, regenerate, attempts)
	return cmd
}

func printRules(w io.Writer, rules []store.Rule) {
	for _, r := range rules {
		kind := "rule"
		if r.IsGoal {
			kind = "goal"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, kind, r.Definition)
	}
}
