package ioqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterestSet_AddLookup(t *testing.T) {
	s := newInterestSet(10)
	assert.Equal(t, -1, s.highFD)
	assert.False(t, s.inRange(0))

	_, err := s.add(5, Readable, true, "r5")
	require.NoError(t, err)
	_, err = s.add(3, Writable, true, "w3")
	require.NoError(t, err)
	_, err = s.add(5, Readable, true, "r5-dup")
	require.NoError(t, err)

	assert.Equal(t, 3, s.len())
	assert.Equal(t, 5, s.highFD)
	assert.True(t, s.inRange(0))
	assert.True(t, s.inRange(5))
	assert.False(t, s.inRange(6))
	assert.False(t, s.inRange(-1))

	data, ok := s.lookup(5, Readable)
	require.True(t, ok)
	assert.Equal(t, "r5", data, "oldest duplicate wins")

	_, ok = s.lookup(5, Writable)
	assert.False(t, ok)
	_, ok = s.lookup(4, Readable)
	assert.False(t, ok)

	assert.Equal(t, Readable, s.kinds(5))
	assert.Equal(t, Writable, s.kinds(3))
	assert.Equal(t, Kind(0), s.kinds(4))
	assert.Equal(t, []int{3, 5}, s.descriptors())
}

func TestInterestSet_Capacity(t *testing.T) {
	s := newInterestSet(2)
	_, err := s.add(1, Readable, true, nil)
	require.NoError(t, err)
	_, err = s.add(2, Readable, true, nil)
	require.NoError(t, err)

	_, err = s.add(3, Readable, true, nil)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 2, s.len())
	assert.Equal(t, 2, s.highFD)

	_, inserted, err := s.upsert(1, Writable, nil)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.False(t, inserted)

	_, inserted, err = s.upsert(1, Readable, "replaced")
	require.NoError(t, err)
	assert.False(t, inserted)
	data, _ := s.lookup(1, Readable)
	assert.Equal(t, "replaced", data)
}

func TestInterestSet_Upsert_InheritsSharing(t *testing.T) {
	s := newInterestSet(10)
	_, err := s.add(7, Readable, false, nil)
	require.NoError(t, err)

	r, inserted, err := s.upsert(7, Writable, "w")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.False(t, r.shared)

	r, inserted, err = s.upsert(8, Writable, "w")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.True(t, r.shared)

	shared, ok := s.sharing(7)
	assert.True(t, ok)
	assert.False(t, shared)

	_, ok = s.sharing(9)
	assert.False(t, ok)
}

func TestInterestSet_Discard(t *testing.T) {
	s := newInterestSet(10)
	_, err := s.add(2, Readable, true, nil)
	require.NoError(t, err)

	high := s.highFD
	r, err := s.add(9, Writable, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, s.highFD)

	s.discard(r, high)
	assert.Equal(t, 1, s.len())
	assert.Equal(t, 2, s.highFD)
	assert.Equal(t, Kind(0), s.kinds(9))
}

func TestInterestSet_RemoveFD(t *testing.T) {
	s := newInterestSet(10)
	for _, r := range []registration{
		{fd: 1, kind: Readable},
		{fd: 2, kind: Readable},
		{fd: 2, kind: Writable},
		{fd: 2, kind: Readable},
		{fd: 3, kind: Writable},
	} {
		_, err := s.add(r.fd, r.kind, true, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, s.removeFD(2))
	assert.Equal(t, 2, s.len())
	assert.Equal(t, 0, s.removeFD(2))
	assert.Equal(t, 0, s.removeFD(100))
	assert.Equal(t, []int{1, 3}, s.descriptors())

	// removal never lowers the bound
	assert.Equal(t, 3, s.highFD)
	assert.Equal(t, 1, s.removeFD(3))
	assert.Equal(t, 3, s.highFD)
}

func TestInterestSet_Snapshot(t *testing.T) {
	s := newInterestSet(10)

	snap := s.snapshot()
	assert.Empty(t, snap.read)
	assert.Empty(t, snap.write)
	assert.Equal(t, -1, snap.maxFD)

	for _, r := range []registration{
		{fd: 8, kind: Writable},
		{fd: 4, kind: Readable},
		{fd: 4, kind: Writable},
		{fd: 4, kind: Readable},
		{fd: 6, kind: Readable},
	} {
		_, err := s.add(r.fd, r.kind, true, nil)
		require.NoError(t, err)
	}

	snap = s.snapshot()
	assert.Equal(t, []int{4, 6}, snap.read)
	assert.Equal(t, []int{4, 8}, snap.write)
	assert.Equal(t, 8, snap.maxFD)

	// immutable with respect to later changes
	s.removeFD(4)
	assert.Equal(t, []int{4, 6}, snap.read)
}

func TestInterestSet_Clear(t *testing.T) {
	s := newInterestSet(10)
	_, err := s.add(1, Readable, true, nil)
	require.NoError(t, err)
	s.clear()
	assert.Equal(t, 0, s.len())
	assert.Empty(t, s.descriptors())
}
