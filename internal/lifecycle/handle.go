package lifecycle

import (
	"sync"

	"github.com/google/uuid"

	"flatmaps/internal/mapsource"
	"flatmaps/internal/pane"
)

// State tracks a map handle through its lifecycle.
type State int

const (
	StateLoading State = iota
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle represents one loaded (or loading) map. It is created in
// StateLoading and transitions to Ready or Failed exactly once; disposal
// moves any state to Closed. The pane back-reference is non-owning.
type Handle struct {
	id         uuid.UUID
	identifier string

	mu        sync.Mutex
	state     State
	desc      *mapsource.Descriptor
	slot      *pane.Slot
	container string
}

func newHandle(identifier string, slot *pane.Slot, container string) *Handle {
	return &Handle{
		id:         uuid.New(),
		identifier: identifier,
		state:      StateLoading,
		slot:       slot,
		container:  container,
	}
}

// ID returns the handle's unique id.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Identifier returns the map identifier this handle was loaded for.
func (h *Handle) Identifier() string {
	return h.identifier
}

// State returns the handle's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Descriptor returns the loaded map descriptor, nil until Ready.
func (h *Handle) Descriptor() *mapsource.Descriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.desc
}

// Pane returns the slot displaying this map, nil for external-container
// loads.
func (h *Handle) Pane() *pane.Slot {
	return h.slot
}

// Container returns the external container id, empty for pool-managed loads.
func (h *Handle) Container() string {
	return h.container
}

// Dispose implements pane.Occupant. It is idempotent; a closed handle keeps
// its descriptor unreachable.
func (h *Handle) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateClosed
	h.desc = nil
}

func (h *Handle) ready(desc *mapsource.Descriptor) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateLoading {
		return false
	}
	h.state = StateReady
	h.desc = desc
	return true
}

func (h *Handle) fail() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateLoading {
		return false
	}
	h.state = StateFailed
	return true
}
