package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dmehra2102/order-payment-service/internal/config"
	orderpg "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := pgxpool.New(cmd.Context(), cfg.PGURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := orderpg.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			cmd.Println("schema up to date")
			return nil
		},
	}
}
