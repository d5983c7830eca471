package main

import (
	"fmt"

	"github.com/md-rashed-zaman/primetable/libs/config"
	"github.com/md-rashed-zaman/primetable/libs/db"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				names, err := storage.MigrationNames()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
				return nil
			}

			dbURL, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}
			pool, err := db.Open(cmd.Context(), dbURL)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer pool.Close()

			applied, err := storage.Migrate(cmd.Context(), pool)
			for _, n := range applied {
				fmt.Fprintf(out, "applied %s\n", n)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "schema is up to date")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list embedded migrations without connecting")
	return cmd
}
