// Package intergration starts the throwaway Postgres and Kafka containers used
// by the integration-tagged tests.
package intergration

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	orderpg "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/postgres"
)

type Env struct {
	PG    *postgres.PostgresContainer
	Kafka *kafka.KafkaContainer
	PGURL string
	KAddr []string
	Pool  *pgxpool.Pool
}

type Option func(*options)

type options struct {
	kafka bool
}

// WithKafka also starts a single-node Kafka broker.
func WithKafka() Option {
	return func(o *options) { o.kafka = true }
}

// Setup starts Postgres, applies the schema and returns a connected pool.
func Setup(ctx context.Context, opts ...Option) (*Env, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orderflow"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, err
	}
	env := &Env{PG: pgC}

	env.PGURL, err = pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.Teardown(context.Background())
		return nil, err
	}
	env.Pool, err = pgxpool.New(ctx, env.PGURL)
	if err != nil {
		env.Teardown(context.Background())
		return nil, err
	}
	if err := orderpg.Migrate(ctx, env.Pool); err != nil {
		env.Teardown(context.Background())
		return nil, err
	}

	if o.kafka {
		env.Kafka, err = kafka.Run(ctx,
			"confluentinc/confluent-local:7.5.0",
			kafka.WithClusterID("order-payment-test"),
		)
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
		env.KAddr, err = env.Kafka.Brokers(ctx)
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
	}
	return env, nil
}

// Truncate empties every table between tests.
func (e *Env) Truncate(ctx context.Context) error {
	_, err := e.Pool.Exec(ctx, `TRUNCATE orders, payments, outbox RESTART IDENTITY CASCADE`)
	return err
}

func (e *Env) Teardown(ctx context.Context) {
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.Kafka != nil {
		_ = testcontainers.TerminateContainer(e.Kafka, testcontainers.StopContext(ctx))
	}
	if e.PG != nil {
		_ = testcontainers.TerminateContainer(e.PG, testcontainers.StopContext(ctx))
	}
}
