package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/jumptrain/internal/domain/catalog"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect curriculum catalogs",
	}
	cmd.AddCommand(newCatalogValidateCommand())
	cmd.AddCommand(newCatalogShowCommand())
	return cmd
}

func newCatalogValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog.yaml>",
		Short: "Check a catalog file without starting the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := catalog.NewIndex(cat); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d timelines, %d procedures)\n", cat.Name(), len(cat.Timelines()), cat.Len())
			return nil
		},
	}
}

type showOptions struct {
	JumpType string
	JSON     bool
}

func newCatalogShowCommand() *cobra.Command {
	opts := &showOptions{}
	cmd := &cobra.Command{
		Use:   "show [catalog.yaml]",
		Short: "Print a catalog in curriculum order; without a file the built-in one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cat *catalog.Static
				err error
			)
			if len(args) == 1 {
				cat, err = catalog.LoadFile(args[0])
			} else {
				cat, err = catalog.Default()
			}
			if err != nil {
				return err
			}
			if opts.JumpType != "" {
				cat = cat.Filter(opts.JumpType)
			}
			return showCatalog(cmd.OutOrStdout(), cat, opts.JSON)
		},
	}
	cmd.Flags().StringVar(&opts.JumpType, "jump-type", "", "only timelines for this jump type")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON instead of text")
	return cmd
}

type shownProcedure struct {
	ID         string `json:"id"`
	Step       string `json:"step"`
	Condition  string `json:"condition"`
	Evaluation string `json:"evaluation,omitempty"`
}

type shownTimeline struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	JumpTypes  []string         `json:"jump_types,omitempty"`
	Procedures []shownProcedure `json:"procedures"`
}

func showCatalog(w io.Writer, cat *catalog.Static, asJSON bool) error {
	out := make([]shownTimeline, 0, len(cat.Timelines()))
	for _, t := range cat.Timelines() {
		st := shownTimeline{ID: t.ID, Name: t.Name, JumpTypes: t.JumpTypes}
		for _, p := range cat.Procedures(t.ID) {
			st.Procedures = append(st.Procedures, shownProcedure{
				ID: p.ID, Step: p.StepName, Condition: string(p.Condition), Evaluation: p.EvaluationID,
			})
		}
		out = append(out, st)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"name": cat.Name(), "timelines": out})
	}
	fmt.Fprintf(w, "%s\n", cat.Name())
	for i, t := range out {
		fmt.Fprintf(w, "%d. %s (%s)\n", i+1, t.Name, t.ID)
		for _, p := range t.Procedures {
			fmt.Fprintf(w, "   - %-24s %-18s %s\n", p.ID, p.Step, p.Condition)
		}
	}
	return nil
}
