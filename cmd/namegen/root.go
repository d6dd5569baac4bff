package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bejimenez/magus/internal/culture"
	"github.com/bejimenez/magus/internal/platform/observability"
	"github.com/bejimenez/magus/internal/services"
	"github.com/bejimenez/magus/internal/synthesis"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	templates string
	verbose   bool
	jsonOut   bool
	seed      uint64

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "namegen",
		Short: "Generate pronounceable culture-styled names",
		Long: `namegen synthesises fantasy names from culture templates, scores arbitrary
names for pronounceability and validates template files. It runs entirely offline
against the built-in templates or a template directory.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := observability.NewConsoleLogger(opts.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialise logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.templates, "templates", "", "culture template directory (default: built-in templates)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "write JSON instead of text")
	cmd.PersistentFlags().Uint64Var(&opts.seed, "seed", 0, "random seed for reproducible output (0 picks a random seed)")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newScoreCmd(opts),
		newCulturesCmd(opts),
		newValidateTemplatesCmd(opts),
	)
	return cmd
}

func (o *rootOptions) log() *zap.Logger {
	if o.logger == nil {
		return zap.NewNop()
	}
	return o.logger
}

func (o *rootOptions) loader(dir string) *culture.Loader {
	return culture.NewDirLoader(dir, culture.WithLoaderLogger(o.log().Named("culture")))
}

// generationService assembles the same orchestrator the API uses, with the cache and
// persistence disabled.
func (o *rootOptions) generationService() (services.GenerationService, error) {
	rng := synthesis.NewRand()
	if o.seed != 0 {
		rng = synthesis.NewSeededRand(o.seed)
	}
	catalog, err := services.NewCultureCatalog(services.CultureCatalogDeps{
		Load: o.loader(o.templates).Load,
		EngineOptions: []synthesis.EngineOption{
			synthesis.WithRand(rng),
			synthesis.WithEngineLogger(o.log().Named("engine")),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return services.NewGenerationService(services.GenerationServiceDeps{
		Catalog: catalog,
		Rand:    rng,
	})
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
