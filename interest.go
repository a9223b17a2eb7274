package ioqueue

import (
	"github.com/google/btree"
)

// btreeDegree is the branching factor of the interest index.
const btreeDegree = 16

// registration is a single (descriptor, kind) interest, with its data.
//
// The seq field orders duplicate registrations for the same key, oldest
// first, since add deliberately does not deduplicate.
type registration struct {
	data   any
	seq    uint64
	fd     int
	kind   Kind
	shared bool
}

func lessRegistration(a, b registration) bool {
	if a.fd != b.fd {
		return a.fd < b.fd
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	return a.seq < b.seq
}

// interestSet is the per-queue table of registrations, ordered by
// (descriptor, kind, seq). It is not safe for concurrent use, the owning
// queue's mutex guards it.
type interestSet struct {
	tree  *btree.BTreeG[registration]
	limit int
	seq   uint64
	// highFD is the largest descriptor ever added, -1 if none. It bounds the
	// descriptors Modify and Remove accept, and is never lowered.
	highFD int
}

// snapshot is an immutable copy of the descriptors of interest, taken when
// a wait begins. Both slices are sorted ascending, without duplicates.
type snapshot struct {
	read  []int
	write []int
	// maxFD is the largest descriptor in either slice, -1 if both are empty
	maxFD int
}

func newInterestSet(limit int) *interestSet {
	return &interestSet{
		tree:   btree.NewG[registration](btreeDegree, lessRegistration),
		limit:  limit,
		highFD: -1,
	}
}

func (s *interestSet) len() int {
	return s.tree.Len()
}

// inRange reports whether fd falls within [0, highFD].
func (s *interestSet) inRange(fd int) bool {
	return fd >= 0 && fd <= s.highFD
}

// add inserts a registration, without checking for an existing one.
// The caller validates fd and kind.
func (s *interestSet) add(fd int, kind Kind, shared bool, data any) (registration, error) {
	if s.tree.Len() >= s.limit {
		return registration{}, ErrCapacity
	}
	s.seq++
	r := registration{
		data:   data,
		seq:    s.seq,
		fd:     fd,
		kind:   kind,
		shared: shared,
	}
	s.tree.ReplaceOrInsert(r)
	if fd > s.highFD {
		s.highFD = fd
	}
	return r, nil
}

// first returns the oldest registration for (fd, kind).
func (s *interestSet) first(fd int, kind Kind) (r registration, ok bool) {
	s.tree.AscendGreaterOrEqual(registration{fd: fd, kind: kind}, func(item registration) bool {
		if item.fd == fd && item.kind == kind {
			r, ok = item, true
		}
		return false
	})
	return
}

// lookup returns the data of the oldest registration for (fd, kind).
func (s *interestSet) lookup(fd int, kind Kind) (any, bool) {
	r, ok := s.first(fd, kind)
	return r.data, ok
}

// upsert updates the data of the oldest registration for (fd, kind), or
// inserts a new registration. A new registration inherits the sharing mode
// of any other registration for fd, defaulting to shared.
func (s *interestSet) upsert(fd int, kind Kind, data any) (r registration, inserted bool, err error) {
	if r, ok := s.first(fd, kind); ok {
		r.data = data
		s.tree.ReplaceOrInsert(r)
		return r, false, nil
	}
	shared, _ := s.sharing(fd)
	r, err = s.add(fd, kind, shared, data)
	if err != nil {
		return registration{}, false, err
	}
	return r, true, nil
}

// discard reverts an insert, restoring the previous high-water descriptor.
func (s *interestSet) discard(r registration, highFD int) {
	s.tree.Delete(r)
	s.highFD = highFD
}

// removeFD deletes every registration for fd, returning how many were
// actually present.
func (s *interestSet) removeFD(fd int) int {
	var found []registration
	s.forFD(fd, func(r registration) {
		found = append(found, r)
	})
	removed := 0
	for _, r := range found {
		if _, ok := s.tree.Delete(r); ok {
			removed++
		}
	}
	return removed
}

// kinds returns the union of the kinds registered for fd.
func (s *interestSet) kinds(fd int) (k Kind) {
	s.forFD(fd, func(r registration) {
		k |= r.kind
	})
	return
}

// sharing reports the sharing mode for fd, false if any registration for
// fd is exclusive. The ok value is false if fd has no registrations.
func (s *interestSet) sharing(fd int) (shared, ok bool) {
	shared = true
	s.forFD(fd, func(r registration) {
		ok = true
		if !r.shared {
			shared = false
		}
	})
	return
}

func (s *interestSet) forFD(fd int, fn func(r registration)) {
	s.tree.AscendGreaterOrEqual(registration{fd: fd}, func(item registration) bool {
		if item.fd != fd {
			return false
		}
		fn(item)
		return true
	})
}

// descriptors returns every registered descriptor, ascending.
func (s *interestSet) descriptors() []int {
	var fds []int
	s.tree.Ascend(func(item registration) bool {
		if n := len(fds); n == 0 || fds[n-1] != item.fd {
			fds = append(fds, item.fd)
		}
		return true
	})
	return fds
}

// snapshot copies the current read and write descriptor sets.
func (s *interestSet) snapshot() *snapshot {
	snap := snapshot{maxFD: -1}
	s.tree.Ascend(func(item registration) bool {
		switch item.kind {
		case Readable:
			if n := len(snap.read); n == 0 || snap.read[n-1] != item.fd {
				snap.read = append(snap.read, item.fd)
			}
		case Writable:
			if n := len(snap.write); n == 0 || snap.write[n-1] != item.fd {
				snap.write = append(snap.write, item.fd)
			}
		}
		snap.maxFD = item.fd
		return true
	})
	return &snap
}

func (s *interestSet) clear() {
	s.tree.Clear(false)
}
