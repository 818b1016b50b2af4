package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmehra2102/order-payment-service/internal/config"
	"github.com/dmehra2102/order-payment-service/internal/payment/infrastructure/gateway"
	"github.com/dmehra2102/order-payment-service/pkg/logging"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Talk to the payment gateway directly",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status <transaction-id>",
		Short: "Look up a transaction at the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Gateway.BaseURL == "" {
				return errors.New("PAYMENT_API_URL is not set")
			}
			log := logging.NewWith(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			st := gateway.NewClient(log, cfg.Gateway).CheckTransactionStatus(cmd.Context(), args[0])

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"success": st.Success, "status": st.Status, "data": st.Data}); err != nil {
				return err
			}
			if !st.Success {
				return errors.New("transaction not confirmed")
			}
			return nil
		},
	})
	return cmd
}
