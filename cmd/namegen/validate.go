package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateTemplatesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-templates [DIR]",
		Short: "Parse and validate culture template files",
		Long: `validate-templates loads every template in DIR (or the --templates directory, or the
built-in set) and reports the first parse or validation failure.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.templates
			if len(args) == 1 {
				dir = args[0]
			}
			registry, err := opts.loader(dir).Load()
			if err != nil {
				return fmt.Errorf("templates invalid: %w", err)
			}
			codes := registry.Codes()
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"valid": true, "cultures": codes})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d templates valid: %v\n", len(codes), codes)
			return nil
		},
	}
}
