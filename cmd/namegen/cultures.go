package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCulturesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cultures",
		Short: "List available cultures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.generationService()
			if err != nil {
				return err
			}
			infos := svc.ListCultures(cmd.Context())

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, infos)
			}

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			if _, err := fmt.Fprintln(w, "CODE\tNAME\tLENGTH\tEXAMPLES"); err != nil {
				return fmt.Errorf("failed to write header: %w", err)
			}
			for _, info := range infos {
				if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Code, info.Name, info.TypicalLength, strings.Join(info.ExampleNames, ", ")); err != nil {
					return fmt.Errorf("failed to write culture: %w", err)
				}
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush writer: %w", err)
			}
			return nil
		},
	}
}
