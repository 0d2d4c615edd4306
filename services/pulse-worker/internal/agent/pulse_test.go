package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	mu        sync.Mutex
	fail      bool
	delay     time.Duration
	pulses    atomic.Int32
	registers atomic.Int32
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func (f *fakeCoordinator) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeCoordinator) Register(context.Context) error {
	f.registers.Add(1)
	return errors.New("coordinator unavailable")
}

func (f *fakeCoordinator) Pulse(ctx context.Context) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.pulses.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPulseLoopTransitions(t *testing.T) {
	state := NewState(testIdentity())
	fake := &fakeCoordinator{fail: true}
	loop := NewPulseLoop(state, fake, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	require.Eventually(t, func() bool {
		return state.Snapshot().Status == StatusError
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, state.Snapshot().LastHeartbeat.IsZero())

	fake.setFail(false)
	require.Eventually(t, func() bool {
		return state.Snapshot().Status == StatusConnected
	}, 2*time.Second, 5*time.Millisecond)
	first := state.Snapshot().LastHeartbeat
	require.False(t, first.IsZero())

	fake.setFail(true)
	require.Eventually(t, func() bool {
		return state.Snapshot().Status == StatusError
	}, 2*time.Second, 5*time.Millisecond)
	require.False(t, state.Snapshot().LastHeartbeat.Before(first))
}

func TestPulseLoopWaitsOneInterval(t *testing.T) {
	state := NewState(testIdentity())
	fake := &fakeCoordinator{}
	loop := NewPulseLoop(state, fake, 200*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), fake.pulses.Load())
	require.Equal(t, StatusUnknown, state.Snapshot().Status)
}

func TestPulseLoopNeverOverlaps(t *testing.T) {
	state := NewState(testIdentity())
	fake := &fakeCoordinator{delay: 30 * time.Millisecond}
	loop := NewPulseLoop(state, fake, 5*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return fake.pulses.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, int32(1), fake.maxFlight.Load())
}

func TestPulseLoopShutdownIsNotAnError(t *testing.T) {
	state := NewState(testIdentity())
	fake := &fakeCoordinator{delay: time.Hour}
	loop := NewPulseLoop(state, fake, 5*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return fake.pulses.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, StatusUnknown, state.Snapshot().Status)
}
