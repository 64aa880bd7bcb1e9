package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	postgresstore "github.com/porthorian/websso/pkg/storage/postgres"
)

type requestsConfig struct {
	DatabaseURL string
	Timeout     time.Duration
}

func init() {
	rootCmd.AddCommand(newRequestsCommand())
}

func newRequestsCommand() *cobra.Command {
	cfg := requestsConfig{
		Timeout: 30 * time.Second,
	}

	requestsCmd := &cobra.Command{
		Use:   "requests",
		Short: "Operate on the pending authentication request store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	requestsCmd.PersistentFlags().StringVar(&cfg.DatabaseURL, "database-url", "", "Database connection URL. Can also be set via WEBSSO_DATABASE_URL.")
	requestsCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Time budget for the store operation.")

	requestsCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete pending requests whose expiry has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL := strings.TrimSpace(cfg.DatabaseURL)
			if databaseURL == "" {
				databaseURL = lookupEnv("WEBSSO_DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.New("missing database URL: set --database-url or WEBSSO_DATABASE_URL")
			}

			db, err := sql.Open("pgx", databaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			adapter, err := postgresstore.NewAdapter(db, postgresstore.Config{})
			if err != nil {
				return fmt.Errorf("initialize request store: %w", err)
			}
			defer adapter.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			purged, err := adapter.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("purge expired requests: %w", err)
			}

			cmd.Printf("Purged %d expired pending request(s).\n", purged)
			return nil
		},
	})

	return requestsCmd
}
