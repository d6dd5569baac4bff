package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bejimenez/magus/internal/services"
)

func newScoreCmd(opts *rootOptions) *cobra.Command {
	var cultureCode string

	cmd := &cobra.Command{
		Use:   "score NAME...",
		Short: "Score names for pronounceability",
		Example: `  namegen score Aelindra Thorgrim
  namegen score Xkrth --culture elvish`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.generationService()
			if err != nil {
				return err
			}

			results := make([]services.NameValidation, 0, len(args))
			for _, name := range args {
				result, err := svc.ValidateName(cmd.Context(), services.ValidateNameCommand{Name: name, Culture: cultureCode})
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				results = append(results, result)
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, results)
			}
			for _, result := range results {
				verdict := "acceptable"
				if !result.Acceptable {
					verdict = "rejected"
				}
				fmt.Fprintf(out, "%s\t%.3f\t%s\t%s\n", result.Name, result.Score, verdict, result.Pronunciation)
				for _, deduction := range result.Deductions {
					fmt.Fprintf(out, "  -%.2f %s\n", deduction.Amount, strings.ReplaceAll(deduction.Rule, "_", " "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cultureCode, "culture", "c", "", "score against a culture's rules")
	return cmd
}
