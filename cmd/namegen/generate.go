package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bejimenez/magus/internal/services"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		gender        string
		length        string
		count         int
		minScore      float64
		noPronounce   bool
		showSyllables bool
	)

	cmd := &cobra.Command{
		Use:   "generate CULTURE",
		Short: "Generate names for a culture",
		Example: `  namegen generate elvish --count 5
  namegen generate dwarven --gender masculine --length short --min-score 0.7
  namegen generate human --seed 42 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.generationService()
			if err != nil {
				return err
			}

			command := services.GenerateNamesCommand{
				Culture: args[0],
				Gender:  gender,
				Length:  length,
				Count:   count,
			}
			if cmd.Flags().Changed("min-score") {
				command.MinScore = &minScore
			}
			include := !noPronounce
			command.IncludePronunciation = &include

			result, err := svc.GenerateNames(cmd.Context(), command)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, result.Names)
			}

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			header := "NAME\tSCORE"
			if include {
				header += "\tPRONUNCIATION"
			}
			if showSyllables {
				header += "\tSYLLABLES"
			}
			if _, err := fmt.Fprintln(w, header); err != nil {
				return fmt.Errorf("failed to write header: %w", err)
			}
			for _, name := range result.Names {
				row := fmt.Sprintf("%s\t%.3f", name.Name, name.Score)
				if include {
					row += "\t" + name.Pronunciation
				}
				if showSyllables {
					row += "\t" + strings.Join(name.Syllables, "-")
				}
				if name.Fallback {
					row += "\t(fallback)"
				}
				if _, err := fmt.Fprintln(w, row); err != nil {
					return fmt.Errorf("failed to write name: %w", err)
				}
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush writer: %w", err)
			}
			if len(result.Names) < result.Parameters.Count {
				fmt.Fprintf(cmd.ErrOrStderr(), "only %d of %d names met the minimum score\n", len(result.Names), result.Parameters.Count)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&gender, "gender", "g", "", "masculine, feminine or neutral")
	cmd.Flags().StringVarP(&length, "length", "l", "", "short, medium or long")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of names (1-20)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0.6, "minimum acceptability score (0-1)")
	cmd.Flags().BoolVar(&noPronounce, "no-pronunciation", false, "omit pronunciation guides")
	cmd.Flags().BoolVar(&showSyllables, "syllables", false, "show syllable segmentation")
	return cmd
}
