package agent

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go-pulse/pkg/shared/defs"
)

// CoordinatorStatus is what the worker last learned about the coordinator from a pulse
type CoordinatorStatus int

const (
	StatusUnknown CoordinatorStatus = iota
	StatusConnected
	StatusError
)

// String returns the label served on /status
func (s CoordinatorStatus) String() string {
	switch s {
	case StatusConnected:
		return "Conectado"
	case StatusError:
		return "Error"
	default:
		return "Desconocido"
	}
}

// Identity is fixed for the life of the process
type Identity struct {
	Id             uuid.UUID
	Port           int
	PublicURL      string
	CoordinatorURL string
	PulseInterval  time.Duration
}

// Snapshot is an immutable view of the coordinator fields. A zero LastHeartbeat means
// no pulse has succeeded yet.
type Snapshot struct {
	Status        CoordinatorStatus
	LastHeartbeat time.Time
}

// State holds the worker's identity and the latest coordinator snapshot. The pulse loop
// is the only writer; readers load the snapshot without locking.
type State struct {
	Identity

	current atomic.Pointer[Snapshot]

	mu        sync.Mutex
	observers []func(Snapshot)
}

func NewState(identity Identity) *State {
	s := &State{Identity: identity}
	s.current.Store(&Snapshot{Status: StatusUnknown})
	return s
}

// Snapshot returns the latest published coordinator view
func (s *State) Snapshot() Snapshot {
	return *s.current.Load()
}

// Subscribe registers fn to be called with every published snapshot, on the writer's goroutine
func (s *State) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// MarkConnected records a successful pulse at the given time
func (s *State) MarkConnected(at time.Time) {
	prev := s.current.Load()
	// Keep last_heartbeat monotonic even if the wall clock steps backwards
	if at.Before(prev.LastHeartbeat) {
		at = prev.LastHeartbeat
	}
	s.publish(&Snapshot{Status: StatusConnected, LastHeartbeat: at})
}

// MarkError records a failed pulse, leaving the last heartbeat untouched
func (s *State) MarkError() {
	prev := s.current.Load()
	s.publish(&Snapshot{Status: StatusError, LastHeartbeat: prev.LastHeartbeat})
}

func (s *State) publish(snap *Snapshot) {
	s.current.Store(snap)

	s.mu.Lock()
	observers := append([]func(Snapshot){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(*snap)
	}
}

// Document builds the /status payload as of now
func (s *State) Document(now time.Time) defs.WorkerStatus {
	snap := s.Snapshot()

	var lastHeartbeat *int64
	if !snap.LastHeartbeat.IsZero() {
		ms := snap.LastHeartbeat.UnixMilli()
		lastHeartbeat = &ms
	}

	return defs.WorkerStatus{
		Worker: defs.WorkerInfo{
			Id:                s.Id.String(),
			Port:              s.Port,
			PublicUrl:         s.PublicURL,
			HeartbeatInterval: s.PulseInterval.Milliseconds(),
			Timestamp:         now.UnixMilli(),
		},
		Coordinator: defs.CoordinatorInfo{
			Url:           s.CoordinatorURL,
			Status:        snap.Status.String(),
			LastHeartbeat: lastHeartbeat,
		},
	}
}
