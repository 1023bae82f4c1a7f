package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/rules"
	"github.com/bsvalues/PACS-DataBridge/internal/transform"
	"github.com/bsvalues/PACS-DataBridge/internal/validation"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with validation and transformation rule files",
	}
	rulesCmd.AddCommand(newRulesCheckCommand(ctx))
	return rulesCmd
}

// ruleProblem is one rule that would be skipped at job time.
type ruleProblem struct {
	ImportType models.ImportType `json:"importType"`
	Kind       string            `json:"kind"`
	Error      string            `json:"error"`
	ID         int64             `json:"id"`
}

func newRulesCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Compile a rule file and report malformed rules (defaults to the built-in set)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var set *rules.Set
			var err error
			name := "built-in rules"
			if len(args) == 1 {
				name = args[0]
				set, err = rules.LoadFile(args[0])
			} else {
				set, err = rules.Defaults()
			}
			if err != nil {
				return err
			}

			problems := checkRules(set, rules.DefaultRegistry(time.Now))
			if ctx.json() {
				if err := writeJSON(cmd, problems); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %d validation and %d transformation rules\n",
					name, len(set.Validation), len(set.Transformation))
				if len(problems) > 0 {
					rows := make([][]string, 0, len(problems))
					for _, p := range problems {
						rows = append(rows, []string{strconv.FormatInt(p.ID, 10), string(p.ImportType), p.Kind, p.Error})
					}
					fmt.Fprint(out, renderTable(
						[]string{"ID", "Import type", "Kind", "Problem"},
						rows,
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
					))
				}
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d malformed rules", len(problems))
			}
			return nil
		},
	}
}

func checkRules(set *rules.Set, reg *rules.Registry) []ruleProblem {
	problems := []ruleProblem{}
	for _, c := range validation.Compile(set.Validation, reg) {
		if c.Err != nil {
			problems = append(problems, ruleProblem{
				ID:         c.Rule.ID,
				ImportType: c.Rule.ImportType,
				Kind:       "validation",
				Error:      c.Err.Error(),
			})
		}
	}
	for _, c := range transform.Compile(set.Transformation, reg) {
		if c.Err != nil {
			problems = append(problems, ruleProblem{
				ID:         c.Rule.ID,
				ImportType: c.Rule.ImportType,
				Kind:       "transformation",
				Error:      c.Err.Error(),
			})
		}
	}
	return problems
}
