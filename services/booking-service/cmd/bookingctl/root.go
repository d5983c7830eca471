package main

import (
	"context"
	"fmt"
	"os"

	"github.com/md-rashed-zaman/primetable/libs/config"
	"github.com/md-rashed-zaman/primetable/libs/db"
	"github.com/md-rashed-zaman/primetable/libs/runtime"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/app"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operate the PrimeTable availability and booking engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadDotEnv()
		},
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newAvailabilityCmd())
	root.AddCommand(newHealthCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bookingctl %s (commit=%s)\n", Version, CommitSHA)
		},
	}
}

// openEngine builds the engine against the configured store. The returned
// func releases the database pool, if any.
func openEngine(ctx context.Context) (*app.Engine, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := runtime.NewLogger("bookingctl")
	if cfg.StorageDriver != "postgres" {
		logger.Warn("using in-memory storage; nothing will be persisted")
		return app.Build(storage.NewMemory(), cfg, app.Options{Logger: logger}), func() {}, nil
	}
	pool, err := db.OpenWithOptions(ctx, cfg.DatabaseURL, cfg.DBPool)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	engine := app.Build(storage.NewPostgres(pool), cfg, app.Options{Logger: logger})
	return engine, pool.Close, nil
}
