package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmehra2102/order-payment-service/internal/config"
	orderkafka "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/order-payment-service/pkg/logging"
	"github.com/dmehra2102/order-payment-service/pkg/shutdown"
)

func newEventsCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the published order and payment events",
	}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print events from the outbox topic as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.KafkaBrokers) == 0 {
				return errors.New("KAFKA_ADDR is not set")
			}
			log := logging.NewWith(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			ctx, cancel := shutdown.WithSignals(cmd.Context())
			defer cancel()

			enc := json.NewEncoder(cmd.OutOrStdout())
			consumer := orderkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.OutboxTopic, group)
			return consumer.Run(ctx, func(_ context.Context, ev orderkafka.Envelope) error {
				return enc.Encode(ev)
			})
		},
	}
	tail.Flags().StringVar(&group, "group", "order-service-tail", "Kafka consumer group")
	cmd.AddCommand(tail)
	return cmd
}
