package pane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOccupant struct {
	disposed bool
}

func (f *fakeOccupant) Dispose() {
	f.disposed = true
}

func TestNewPool_RejectsZeroPanes(t *testing.T) {
	_, err := NewPool(0, nil)
	require.Error(t, err)

	_, err = NewPool(-3, nil)
	require.Error(t, err)
}

func TestAcquire_GrowsLazilyUpToBound(t *testing.T) {
	pool, err := NewPool(3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, pool.Len(), "no slots before first acquisition")

	a := pool.Acquire()
	b := pool.Acquire()
	c := pool.Acquire()

	assert.Equal(t, 3, pool.Len())
	assert.Equal(t, 0, a.Index())
	assert.Equal(t, 1, b.Index())
	assert.Equal(t, 2, c.Index())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestAcquire_ReusesRightmostWhenFull(t *testing.T) {
	pool, err := NewPool(2, nil)
	require.NoError(t, err)

	a := pool.Acquire()
	b := pool.Acquire()

	occA := &fakeOccupant{}
	occB := &fakeOccupant{}
	genA := pool.BeginLoad(a, nil)
	require.True(t, pool.Install(a, genA, occA))
	genB := pool.BeginLoad(b, nil)
	require.True(t, pool.Install(b, genB, occB))

	reused := pool.Acquire()

	assert.Same(t, b, reused, "rightmost slot is the reuse target")
	assert.Equal(t, 2, pool.Len(), "pool never exceeds its bound")
	assert.True(t, occB.disposed, "previous occupant of the reused slot is disposed")
	assert.False(t, occA.disposed, "other panes are untouched")
	assert.Nil(t, pool.Occupant(reused))
}

func TestAcquire_SinglePaneAlwaysReusesSameSlot(t *testing.T) {
	pool, err := NewPool(1, nil)
	require.NoError(t, err)

	first := pool.Acquire()
	second := pool.Acquire()
	third := pool.Acquire()

	assert.Same(t, first, second)
	assert.Same(t, first, third)
	assert.Equal(t, 1, pool.Len())
}

func TestAcquireAt(t *testing.T) {
	pool, err := NewPool(3, nil)
	require.NoError(t, err)

	first, err := pool.AcquireAt(0)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Index())

	// Next unallocated index grows the pool.
	second, err := pool.AcquireAt(1)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Index())

	// Existing index tears down and reuses in place.
	occ := &fakeOccupant{}
	gen := pool.BeginLoad(first, nil)
	require.True(t, pool.Install(first, gen, occ))

	again, err := pool.AcquireAt(0)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.True(t, occ.disposed)

	// A gap beyond the next index is out of range, as is anything past the bound.
	_, err = pool.AcquireAt(5)
	assert.Error(t, err)
	_, err = pool.AcquireAt(-1)
	assert.Error(t, err)
}

func TestBeginLoad_CancelsPriorLoadAndBumpsGeneration(t *testing.T) {
	pool, err := NewPool(1, nil)
	require.NoError(t, err)
	slot := pool.Acquire()

	ctx1, cancel1 := context.WithCancel(context.Background())
	gen1 := pool.BeginLoad(slot, cancel1)
	assert.True(t, pool.Busy(slot))

	_, cancel2 := context.WithCancel(context.Background())
	gen2 := pool.BeginLoad(slot, cancel2)

	assert.Error(t, ctx1.Err(), "starting a new load cancels the one in flight")
	assert.Greater(t, gen2, gen1)

	// The superseded load's install is refused; its occupant stays out.
	stale := &fakeOccupant{}
	assert.False(t, pool.Install(slot, gen1, stale))
	assert.Nil(t, pool.Occupant(slot))

	// The current load installs normally.
	current := &fakeOccupant{}
	assert.True(t, pool.Install(slot, gen2, current))
	assert.Same(t, current, pool.Occupant(slot))
	assert.False(t, pool.Busy(slot))
}

func TestAbandon_ClearsInFlightOnlyForCurrentGeneration(t *testing.T) {
	pool, err := NewPool(1, nil)
	require.NoError(t, err)
	slot := pool.Acquire()

	_, cancel1 := context.WithCancel(context.Background())
	gen1 := pool.BeginLoad(slot, cancel1)
	_, cancel2 := context.WithCancel(context.Background())
	gen2 := pool.BeginLoad(slot, cancel2)

	pool.Abandon(slot, gen1)
	assert.True(t, pool.Busy(slot), "stale abandon does not clear the newer load")

	pool.Abandon(slot, gen2)
	assert.False(t, pool.Busy(slot))
}

func TestClose_HidesSlotAndAcquireUnhides(t *testing.T) {
	pool, err := NewPool(1, nil)
	require.NoError(t, err)
	slot := pool.Acquire()

	occ := &fakeOccupant{}
	gen := pool.BeginLoad(slot, nil)
	require.True(t, pool.Install(slot, gen, occ))

	pool.Close(slot)
	assert.True(t, pool.Hidden(slot))
	assert.True(t, occ.disposed)
	assert.Nil(t, pool.Occupant(slot))

	reused := pool.Acquire()
	assert.Same(t, slot, reused)
	assert.False(t, pool.Hidden(slot))
}

func TestRelease_KeepsSlotVisibleAndAcquirable(t *testing.T) {
	pool, err := NewPool(2, nil)
	require.NoError(t, err)
	slot := pool.Acquire()

	occ := &fakeOccupant{}
	gen := pool.BeginLoad(slot, nil)
	require.True(t, pool.Install(slot, gen, occ))

	pool.Release(slot)
	assert.False(t, pool.Hidden(slot))
	assert.True(t, occ.disposed)

	// Install against the pre-release generation is refused.
	assert.False(t, pool.Install(slot, gen, &fakeOccupant{}))
}

func TestTeardown_DisposesAllOccupants(t *testing.T) {
	pool, err := NewPool(2, nil)
	require.NoError(t, err)

	a := pool.Acquire()
	b := pool.Acquire()
	occA := &fakeOccupant{}
	occB := &fakeOccupant{}
	genA := pool.BeginLoad(a, nil)
	require.True(t, pool.Install(a, genA, occA))
	genB := pool.BeginLoad(b, nil)
	require.True(t, pool.Install(b, genB, occB))

	pool.Teardown()

	assert.True(t, occA.disposed)
	assert.True(t, occB.disposed)
	assert.Nil(t, pool.Occupant(a))
	assert.Nil(t, pool.Occupant(b))
}
