// Package grpcHealth serves the standard gRPC health service with the coordinator
// status mirrored onto it.
package grpcHealth

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"go-pulse/services/pulse-worker/internal/agent"
)

// CoordinatorService is the health service name that tracks the coordinator status
const CoordinatorService = "coordinator"

type Mirror struct {
	health *health.Server
}

// NewMirror creates a mirror seeded with state's current snapshot and subscribed to
// every later one
func NewMirror(state *agent.State) *Mirror {
	m := &Mirror{health: health.NewServer()}
	m.Observe(state.Snapshot())
	state.Subscribe(m.Observe)
	return m
}

// Observe maps a coordinator snapshot onto the health service
func (m *Mirror) Observe(snap agent.Snapshot) {
	m.health.SetServingStatus(CoordinatorService, servingStatus(snap.Status))
}

func servingStatus(s agent.CoordinatorStatus) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case agent.StatusConnected:
		return healthpb.HealthCheckResponse_SERVING
	case agent.StatusError:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
}

// Register attaches the health service to s
func (m *Mirror) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.health)
}

// Serve runs a gRPC server exposing the mirror on ln until ctx is cancelled
func (m *Mirror) Serve(ctx context.Context, ln net.Listener) error {
	grpcServer := grpc.NewServer()
	m.Register(grpcServer)

	go func() {
		<-ctx.Done()
		m.health.Shutdown()
		grpcServer.GracefulStop()
	}()

	slog.Info("gRPC health server listening", "addr", ln.Addr().String())
	if err := grpcServer.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
