// Package agent implements the worker's lifecycle: identity, registration with the
// coordinator, the pulse loop and the state read by the HTTP surface.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-pulse/pkg/config"
)

const shutdownTimeout = 5 * time.Second

// Registrar is the interface the agent needs for the one-time announcement
type Registrar interface {
	Register(ctx context.Context) error
}

// Coordinator combines both outbound calls
type Coordinator interface {
	Registrar
	Pulser
}

type Agent struct {
	state       *State
	coordinator Coordinator
	interval    time.Duration
	logger      *slog.Logger
}

// New creates an agent with a fresh identity and an HTTP coordinator client
func New(cfg config.WorkerConfig) *Agent {
	state := NewState(Identity{
		Id:             uuid.New(),
		Port:           cfg.Port,
		PublicURL:      cfg.PublicURL,
		CoordinatorURL: cfg.CoordinatorURL,
		PulseInterval:  cfg.PulseInterval,
	})
	client := NewCoordinatorClient(cfg.CoordinatorURL, state.Id, cfg.PublicURL, cfg.RequestTimeout)
	return NewWithCoordinator(state, client)
}

// NewWithCoordinator wires an agent around an existing state and coordinator
func NewWithCoordinator(state *State, coordinator Coordinator) *Agent {
	return &Agent{
		state:       state,
		coordinator: coordinator,
		interval:    state.PulseInterval,
		logger:      slog.With("component", "agent", "workerId", state.Id.String()),
	}
}

func (a *Agent) State() *State {
	return a.state
}

// Run serves handler on ln, registers once, then pulses until ctx is cancelled, at which
// point the server is shut down gracefully. The listener must already be bound so that
// registration only happens once the worker is reachable.
func (a *Agent) Run(ctx context.Context, ln net.Listener, handler http.Handler) error {
	// Request contexts derive from ctx so that hijacked connections (the /ws stream)
	// see shutdown; server.Shutdown does not track them.
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("Worker listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	a.register(ctx)

	var wg sync.WaitGroup
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		NewPulseLoop(a.state, a.coordinator, a.interval, a.logger).Run(loopCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Signal received, shutting down...")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	stopLoop()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server Shutdown error", "error", err)
	} else {
		a.logger.Info("HTTP server shut down gracefully")
	}

	return runErr
}

// register is fire-and-forget: failure is logged and does not touch the coordinator status
func (a *Agent) register(ctx context.Context) {
	if err := a.coordinator.Register(ctx); err != nil {
		a.logger.Error("Error registering with coordinator", "error", err, "coordinator", a.state.CoordinatorURL)
		return
	}
	a.logger.Info("Registered with coordinator", "coordinator", a.state.CoordinatorURL, "publicUrl", a.state.PublicURL)
}
