package pane

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"flatmaps/internal/platform/metrics"
	dErrors "flatmaps/pkg/domain-errors"
)

// Pool owns an ordered collection of slots bounded by maxPanes. Acquisition
// creates slots lazily up to the bound, then reuses the rightmost slot. A
// mutex serializes all slot mutation; occupant state is never touched outside
// of it.
type Pool struct {
	mu       sync.Mutex
	slots    []*Slot
	maxPanes int
	metrics  *metrics.Metrics
}

// NewPool constructs an empty pool. maxPanes must be at least 1; with
// maxPanes = 1 every acquisition reuses the same slot, which reproduces the
// legacy single-pane behavior.
func NewPool(maxPanes int, m *metrics.Metrics) (*Pool, error) {
	if maxPanes < 1 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "maxPanes must be at least 1")
	}
	return &Pool{maxPanes: maxPanes, metrics: m}, nil
}

// Acquire returns a slot ready to receive a new occupant. If the pool is not
// full a fresh slot is appended; otherwise the rightmost slot is torn down
// (occupant disposed, in-flight load cancelled) and returned for reuse. The
// returned slot is always empty and visible.
func (p *Pool) Acquire() *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.slots) < p.maxPanes {
		return p.appendSlotLocked()
	}
	return p.reuseLocked(p.slots[len(p.slots)-1])
}

// AcquireAt prefers the slot at the given position. An existing slot at that
// index is torn down and reused; the next unallocated index grows the pool.
// Anything else is out of range.
func (p *Pool) AcquireAt(preferred int) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case preferred >= 0 && preferred < len(p.slots):
		return p.reuseLocked(p.slots[preferred]), nil
	case preferred == len(p.slots) && preferred < p.maxPanes:
		return p.appendSlotLocked(), nil
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "preferred pane position out of range")
	}
}

func (p *Pool) appendSlotLocked() *Slot {
	s := &Slot{id: uuid.New(), index: len(p.slots)}
	p.slots = append(p.slots, s)
	p.metrics.IncPanesCreated()
	return s
}

func (p *Pool) reuseLocked(s *Slot) *Slot {
	s.teardown()
	s.hidden = false
	p.metrics.IncPanesReused()
	return s
}

// Release disposes the slot's occupant and cancels any in-flight load. The
// slot stays in the pool and remains acquirable.
func (p *Pool) Release(s *Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.teardown()
}

// Close is the user-initiated variant of Release: the slot's close affordance
// also hides it. A later Acquire makes it visible again.
func (p *Pool) Close(s *Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.teardown()
	s.hidden = true
}

// BeginLoad registers a new in-flight load on the slot. Any previous in-flight
// load is cancelled, and the slot generation is bumped so the superseded
// load's result is discarded at install time. Returns the generation the new
// load must present to Install.
func (p *Pool) BeginLoad(s *Slot, cancel context.CancelFunc) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.cancelInFlight()
	s.generation++
	s.cancel = cancel
	return s.generation
}

// Install assigns the occupant produced by the load that holds gen. It fails
// when the slot has moved on (superseded, released, or closed) since
// BeginLoad; the caller must then dispose the occupant itself.
func (p *Pool) Install(s *Slot, gen uint64, occ Occupant) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.occupant = occ
	s.cancel = nil
	return true
}

// Abandon clears the in-flight marker after a failed load, leaving the slot
// empty. A stale generation is ignored.
func (p *Pool) Abandon(s *Slot, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.cancel = nil
}

// Len reports how many slots have been created so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// MaxPanes returns the configured bound.
func (p *Pool) MaxPanes() int {
	return p.maxPanes
}

// Slot returns the slot at index, or nil when out of range.
func (p *Pool) Slot(index int) *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.slots) {
		return nil
	}
	return p.slots[index]
}

// Occupant returns the slot's current occupant, nil when empty.
func (p *Pool) Occupant(s *Slot) Occupant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.occupant
}

// Hidden reports whether the slot's visual affordance is hidden.
func (p *Pool) Hidden(s *Slot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.hidden
}

// Busy reports whether the slot has a load in flight.
func (p *Pool) Busy(s *Slot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.cancel != nil
}

// Teardown releases every slot. Used when the owning viewer shuts down.
func (p *Pool) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		s.teardown()
	}
}
