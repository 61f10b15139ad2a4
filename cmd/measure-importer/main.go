package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/measure-importer/internal/config"
	"github.com/ehr/measure-importer/internal/measure"
	"github.com/ehr/measure-importer/internal/platform/db"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "measure-importer",
		Short:        "Extract measure-relevant clinical entries from CDA documents",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(measuresCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}

// newLogger writes JSON to w, or console output in development.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.ZerologLevel())
}

type importerFlags struct {
	profile string
	strict  bool
}

// newImporter builds an importer from the config, with command flags taking
// precedence when set.
func newImporter(cmd *cobra.Command, cfg *config.Config, flags importerFlags, logger zerolog.Logger) (*measure.Importer, error) {
	name := cfg.DocumentProfile
	if cmd != nil && cmd.Flags().Changed("profile") {
		name = flags.profile
	}
	profile, err := measure.ParseProfile(name)
	if err != nil {
		return nil, err
	}

	strict := cfg.StrictCategories
	if cmd != nil && cmd.Flags().Changed("strict") {
		strict = flags.strict
	}

	opts := []measure.Option{measure.WithProfile(profile), measure.WithLogger(logger)}
	if strict {
		opts = append(opts, measure.WithStrictCategories())
	}
	return measure.NewImporter(opts...)
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if !cfg.HasDatabase() {
		return nil, fmt.Errorf("DATABASE_URL is required for this command")
	}
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
	})
}
