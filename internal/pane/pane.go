// Package pane manages the bounded pool of display slots a viewer instance
// owns. Slots are created lazily up to the configured maximum and never
// deallocated afterwards; once the pool is full, acquisition reuses the
// rightmost slot after tearing down whatever it currently holds.
package pane

import (
	"context"

	"github.com/google/uuid"
)

// Occupant is anything a slot can hold. The pool disposes the current
// occupant before a slot is handed out for reuse, so a slot never has two
// live occupants.
type Occupant interface {
	Dispose()
}

// Slot is a single display region holding at most one occupant. All mutable
// fields are guarded by the owning pool's mutex; callers interact with slots
// through the pool.
type Slot struct {
	id    uuid.UUID
	index int

	hidden     bool
	occupant   Occupant
	generation uint64
	cancel     context.CancelFunc
}

// ID returns the slot's opaque handle.
func (s *Slot) ID() uuid.UUID {
	return s.id
}

// Index returns the slot's position in the pool, fixed at creation.
func (s *Slot) Index() int {
	return s.index
}

// cancelInFlight cancels the slot's current load, if any. Caller holds the
// pool mutex.
func (s *Slot) cancelInFlight() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// teardown disposes the occupant and cancels any in-flight load. Caller holds
// the pool mutex.
func (s *Slot) teardown() {
	s.cancelInFlight()
	if s.occupant != nil {
		s.occupant.Dispose()
		s.occupant = nil
	}
	s.generation++
}
