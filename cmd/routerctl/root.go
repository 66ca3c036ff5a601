package main

import (
	"encoding/json"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/media-upload-router/internal/bootstrap"
	"github.com/kirillkom/media-upload-router/internal/config"
	"github.com/kirillkom/media-upload-router/internal/observability/logging"
)

type commandContext struct {
	catalogPath string
	jsonOutput  bool

	core *bootstrap.Core
}

// ensureCore builds the decision services once per invocation.
func (c *commandContext) ensureCore() (*bootstrap.Core, error) {
	if c.core != nil {
		return c.core, nil
	}
	cfg := config.Load()
	if c.catalogPath != "" {
		cfg.FlagCatalogPath = c.catalogPath
	}
	core, err := bootstrap.NewCore(cfg)
	if err != nil {
		return nil, err
	}
	c.core = core
	return core, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "routerctl",
		Short:         "Offline tooling for the media upload router",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			_ = godotenv.Load()
			slog.SetDefault(logging.New("routerctl", "warn", logging.FormatAuto, cmd.ErrOrStderr()))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.catalogPath, "catalog", "", "Flag catalog file (YAML or TOML)")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOutput, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newPathCommand(ctx))
	rootCmd.AddCommand(newFlagsCommand(ctx))
	rootCmd.AddCommand(newCatalogCommand(ctx))
	rootCmd.AddCommand(newSanitizeCommand())
	rootCmd.AddCommand(newRecoverCommand(ctx))

	return rootCmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
