package grpcHealth

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"go-pulse/services/pulse-worker/internal/agent"
)

func dialMirror(t *testing.T, m *Mirror) (healthpb.HealthClient, context.CancelFunc) {
	t.Helper()
	ln := bufconn.Listen(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, ln) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ln.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	return healthpb.NewHealthClient(conn), func() {
		_ = conn.Close()
		cancel()
		require.NoError(t, <-done)
	}
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestMirrorFollowsCoordinatorStatus(t *testing.T) {
	state := agent.NewState(agent.Identity{Id: uuid.New(), PulseInterval: time.Second})
	m := NewMirror(state)

	c, stop := dialMirror(t, m)
	defer stop()

	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVICE_UNKNOWN, check(t, c, CoordinatorService))

	state.MarkConnected(time.Now())
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, CoordinatorService))

	state.MarkError()
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, CoordinatorService))
}
