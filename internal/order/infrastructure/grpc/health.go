package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported next to the overall ("") status.
const ServiceName = "orderpayment.OrderService"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer reports SERVING while the store answers pings.
type HealthServer struct {
	log      *slog.Logger
	store    Pinger
	health   *health.Server
	interval time.Duration
}

func NewHealthServer(log *slog.Logger, store Pinger, interval time.Duration) *HealthServer {
	return &HealthServer{
		log:      log,
		store:    store,
		health:   health.NewServer(),
		interval: interval,
	}
}

func (h *HealthServer) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, h.health)
}

// Refresh pings the store once and publishes the result.
func (h *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("store ping failed", "err", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch refreshes the status until ctx is done, then marks the service as
// shutting down.
func (h *HealthServer) Watch(ctx context.Context) {
	h.Refresh(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}

func Run(addr string, h *HealthServer) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	h.Register(gs)
	go func() {
		if err := gs.Serve(lis); err != nil {
			h.log.Error("grpc server stopped", "err", err)
		}
	}()
	return gs, nil
}
