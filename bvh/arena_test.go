package bvh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaAllocateLowestFirst(t *testing.T) {
	a := newArena[int, string](4)
	require.Equal(t, 4, a.capacity())

	require.Equal(t, Slot(0), a.allocate(slotInternal))
	require.Equal(t, Slot(1), a.allocate(slotInternal))
	require.Equal(t, Slot(2), a.allocate(slotInternal))

	a.release(1)
	require.Equal(t, slotFree, a.states[1])
	require.Equal(t, Slot(1), a.allocate(slotLinked))
	require.Equal(t, slotLinked, a.states[1])
}

func TestArenaGrowKeepsNodes(t *testing.T) {
	a := newArena[int, string](2)

	s := a.allocate(slotLinked)
	n := a.node(s)
	n.Key = 42

	a.allocate(slotLinked)
	require.Equal(t, 2, a.capacity())

	grown := a.allocate(slotLinked)
	require.Equal(t, Slot(2), grown)
	require.Equal(t, 4, a.capacity())
	require.Len(t, a.states, 4)

	require.Same(t, n, a.node(s))
	require.Equal(t, 42, a.node(s).Key)
	require.Equal(t, grown, a.node(grown).Index)
	require.Equal(t, None, a.node(grown).Parent)

	for i := 0; i < 2; i++ {
		a.allocate(slotLinked)
	}
	require.Equal(t, 8, a.capacity())
	require.True(t, a.contains(7))
	require.False(t, a.contains(8))
	require.False(t, a.contains(None))
}

func TestArenaDefaultCapacity(t *testing.T) {
	a := newArena[int, string](0)
	require.Equal(t, DefaultInitialCapacity, a.capacity())
}

func TestArenaReleaseInvalidatesHandles(t *testing.T) {
	a := newArena[int, string](4)

	s := a.allocate(slotLinked)
	h := a.handle(s)
	require.True(t, a.owns(h))

	a.release(s)
	require.False(t, a.owns(h))

	require.Equal(t, s, a.allocate(slotLinked))
	require.False(t, a.owns(h))
	require.True(t, a.owns(a.handle(s)))
	require.Equal(t, h.Version+1, a.handle(s).Version)

	require.False(t, a.owns(Handle{Slot: None}))
	require.False(t, a.owns(Handle{Slot: 4}))
}
