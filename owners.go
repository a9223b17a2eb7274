package ioqueue

import (
	"sync"
)

// ownerIndex tracks which queues hold each descriptor, and whether any of
// them holds it exclusively. It is only consulted when exclusive
// descriptors are enforced, and has its own lock, separate from the queue
// slot table.
type ownerIndex struct {
	// owners maps fd -> queue -> exclusive
	owners map[int]map[QueueID]bool
	mu     sync.Mutex
}

func newOwnerIndex() *ownerIndex {
	return &ownerIndex{owners: make(map[int]map[QueueID]bool)}
}

// acquire records that q holds fd, failing with ErrDescriptorInUse if
// another queue holds fd exclusively, or if the request is exclusive and any
// other queue holds fd. The returned func reverts the change, for use if the
// registration subsequently fails. A nil index accepts everything.
func (x *ownerIndex) acquire(fd int, q QueueID, shared bool) (undo func(), err error) {
	if x == nil {
		return func() {}, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	holders := x.owners[fd]
	for other, exclusive := range holders {
		if other != q && (exclusive || !shared) {
			return nil, ErrDescriptorInUse
		}
	}

	if holders == nil {
		holders = make(map[QueueID]bool)
		x.owners[fd] = holders
	}
	prev, held := holders[q]
	holders[q] = prev || !shared

	return func() {
		x.mu.Lock()
		defer x.mu.Unlock()
		if held {
			if holders, ok := x.owners[fd]; ok {
				if _, ok := holders[q]; ok {
					holders[q] = prev
				}
			}
		} else {
			x.forget(fd, q)
		}
	}, nil
}

// release records that q no longer holds any of fds.
func (x *ownerIndex) release(q QueueID, fds ...int) {
	if x == nil {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, fd := range fds {
		x.forget(fd, q)
	}
}

func (x *ownerIndex) forget(fd int, q QueueID) {
	holders := x.owners[fd]
	delete(holders, q)
	if len(holders) == 0 {
		delete(x.owners, fd)
	}
}
