package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dmehra2102/order-payment-service/internal/config"
	"github.com/dmehra2102/order-payment-service/internal/order/application"
	ordergrpc "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/postgres"
	orderredis "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/redis"
	paymentapp "github.com/dmehra2102/order-payment-service/internal/payment/application"
	"github.com/dmehra2102/order-payment-service/internal/payment/infrastructure/gateway"
	paymentpg "github.com/dmehra2102/order-payment-service/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/order-payment-service/internal/store/memory"
	"github.com/dmehra2102/order-payment-service/pkg/cache"
	"github.com/dmehra2102/order-payment-service/pkg/logging"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
	"github.com/dmehra2102/order-payment-service/pkg/shutdown"
	"github.com/dmehra2102/order-payment-service/pkg/tracing"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health endpoint and the outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// stores groups the storage ports so both backends are wired the same way.
type stores struct {
	orders   application.OrderRepository
	uow      paymentapp.UnitOfWork
	payments paymentapp.PaymentReader
	outbox   outbox.Store
	pinger   ordergrpc.Pinger
	close    func()
}

func openStores(ctx context.Context, log *slog.Logger, cfg config.Config) (stores, error) {
	if cfg.Store == config.StoreMemory {
		m := memory.NewStore()
		log.Warn("using in-memory store, data is lost on restart")
		return stores{orders: m, uow: m, payments: m, outbox: m, pinger: m, close: func() {}}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		return stores{}, err
	}
	if err := orderpg.Migrate(ctx, pool); err != nil {
		pool.Close()
		return stores{}, err
	}
	orders := orderpg.NewRepository(log, pool)
	payments := paymentpg.NewRepository(log, pool)
	return stores{
		orders:   orders,
		uow:      payments,
		payments: payments,
		outbox:   orderpg.NewOutboxStore(log, pool),
		pinger:   orders,
		close:    pool.Close,
	}, nil
}

func newGateway(log *slog.Logger, cfg config.Gateway) paymentapp.Gateway {
	if cfg.Mode == config.GatewayHTTP {
		return gateway.NewClient(log, cfg)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return gateway.NewSimulator(log, rand.New(rand.NewSource(seed)), cfg.FailureRate)
}

func serve(parent context.Context, cfg config.Config) error {
	log := logging.NewWith(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := shutdown.WithSignals(parent)
	defer cancel()

	tp, err := tracing.Init(ctx, "order-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	st, err := openStores(ctx, log, cfg)
	if err != nil {
		log.Error("store setup failed", "store", cfg.Store, "err", err)
		return err
	}
	defer st.close()

	orders := st.orders
	var paymentOpts []paymentapp.Option
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cached := orderredis.NewCachedRepository(log, orders, cache.NewStore(rdb, "orders", cfg.CacheTTL.Std()))
		orders = cached
		paymentOpts = append(paymentOpts, paymentapp.WithOrderCache(cached))
	}

	orderSvc := application.NewService(log, orders)
	paymentSvc := paymentapp.NewService(log, st.uow, st.payments, newGateway(log, cfg.Gateway), paymentOpts...)
	handler := orderhttp.NewHandler(log, orderSvc, paymentSvc)

	var producer outbox.Producer = outbox.LogProducer{Log: log}
	if len(cfg.KafkaBrokers) > 0 {
		writer := orderkafka.NewWriter(log, cfg.KafkaBrokers)
		defer writer.Close()
		producer = writer
	}
	relay := outbox.NewRelay(log, st.outbox, outbox.NewDispatcher(log, producer, cfg.OutboxTopic), "order-service-relay")

	health := ordergrpc.NewHealthServer(log, st.pinger, 10*time.Second)
	gs, err := ordergrpc.Run(cfg.GRPCAddr, health)
	if err != nil {
		log.Error("grpc listen failed", "addr", cfg.GRPCAddr, "err", err)
		return err
	}
	go health.Watch(ctx)

	// The write deadline has to outlive a payment call with all its retries.
	gw := cfg.Gateway
	writeTimeout := time.Duration(max(gw.RetryAttempts, 1))*(gw.Timeout.Std()+gw.RetryBackoff.Std()) + 10*time.Second
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: writeTimeout,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.Store, "gateway", cfg.Gateway.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), writeTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	gs.GracefulStop()
	log.Info("order-service shutdown complete")
	return nil
}
