package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cognicore/lexatom/pkg/lexatom"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
)

func (a *app) atomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atoms",
		Short: "Extract, revise and edit atoms",
	}

	list := &cobra.Command{
		Use:   "list ID",
		Short: "List a fragment's atoms",
		Args:  cobra.ExactArgs(1),
		RunE: a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
			atoms, err := l.Atoms(ctx, id)
			if err != nil {
				return err
			}
			printAtoms(w, atoms)
			return nil
		}),
	}

	generate := &cobra.Command{
		Use:   "generate ID",
		Short: "Extract atoms for a fragment that has none",
		Args:  cobra.ExactArgs(1),
		RunE: a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
			atoms, err := l.GenerateAtoms(ctx, id)
			if err != nil {
				return err
			}
			printAtoms(w, atoms)
			return nil
		}),
	}

	var workers int
	generateAll := &cobra.Command{
		Use:   "generate-all",
		Short: "Extract atoms for every fragment that has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLexatom(cmd, func(ctx context.Context, l *lexatom.Lexatom) error {
				byFragment, err := l.GenerateAllAtoms(ctx, workers)
				for id, atoms := range byFragment {
					fmt.Fprintf(cmd.OutOrStdout(), "fragment %d: %d atoms\n", id, len(atoms))
				}
				return err
			})
		},
	}
	generateAll.Flags().IntVar(&workers, "workers", lexatom.DefaultWorkers, "fragments processed concurrently")

	var feedback string
	regenerate := &cobra.Command{
		Use:   "regenerate ID",
		Short: "Replace a fragment's atoms with a revision",
		Args:  cobra.ExactArgs(1),
		RunE: a.fragmentAction(func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error {
			atoms, err := l.RegenerateAtoms(ctx, id, feedback)
			if err != nil {
				return err
			}
			printAtoms(w, atoms)
			return nil
		}),
	}
	regenerate.Flags().StringVar(&feedback, "feedback", "", "reviewer feedback for the model")

	set := &cobra.Command{
		Use:   "set ATOM_ID PREDICATE",
		Short: "Change an atom's predicate after checking it with the reasoner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withLexatom(cmd, func(ctx context.Context, l *lexatom.Lexatom) error {
				atom, err := l.UpdateAtomPredicate(ctx, id, args[1])
				if err != nil {
					return err
				}
				printAtoms(cmd.OutOrStdout(), []store.Atom{atom})
				return nil
			})
		},
	}

	cmd.AddCommand(list, generate, generateAll, regenerate, set)
	return cmd
}

// fragmentAction adapts a per-fragment action to a cobra RunE taking the
// fragment id as its only argument.
func (a *app) fragmentAction(fn func(ctx context.Context, l *lexatom.Lexatom, w io.Writer, id int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.withLexatom(cmd, func(ctx context.Context, l *lexatom.Lexatom) error {
			return fn(ctx, l, cmd.OutOrStdout(), id)
		})
	}
}

func printAtoms(w io.Writer, atoms []store.Atom) {
	for _, a := range atoms {
		kind := "derived"
		if a.IsFact {
			kind = "fact"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.ID, kind, a.Predicate, a.Description)
	}
}
