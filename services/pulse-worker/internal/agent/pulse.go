package agent

import (
	"context"
	"log/slog"
	"time"
)

// Pulser is the interface the pulse loop needs from a coordinator client
type Pulser interface {
	Pulse(ctx context.Context) error
}

// PulseLoop sends a pulse every interval and records the outcome in State
type PulseLoop struct {
	state    *State
	client   Pulser
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewPulseLoop(state *State, client Pulser, interval time.Duration, logger *slog.Logger) *PulseLoop {
	return &PulseLoop{
		state:    state,
		client:   client,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled. The first pulse goes out one interval after Run
// starts. Attempts run inline, so a slow coordinator delays later ticks instead of
// overlapping with them.
func (p *PulseLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Pulse loop started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Pulse loop stopped")
			return
		case <-ticker.C:
			p.pulseOnce(ctx)
		}
	}
}

func (p *PulseLoop) pulseOnce(ctx context.Context) {
	if err := p.client.Pulse(ctx); err != nil {
		// Shutdown aborts the in-flight call; that is not a coordinator failure
		if ctx.Err() != nil {
			return
		}
		p.state.MarkError()
		p.logger.Warn("Error sending pulse", "error", err)
		return
	}

	p.state.MarkConnected(p.now())
	p.logger.Debug("Pulse sent")
}
