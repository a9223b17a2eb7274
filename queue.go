package ioqueue

import (
	"fmt"
	"sync"
	"time"
)

// shutdownWakeInterval is how often a destroyed queue repeats its wake-up,
// while waits are still in flight.
const shutdownWakeInterval = 10 * time.Millisecond

// queue pairs one interest set with one driver. The mutex guards the
// interest set, the dead flag, and every driver control call. Native waits
// run without it, tracked by waiters so that teardown can wait them out.
type queue struct {
	drv driver
	set *interestSet
	// owners is shared by every queue of the registry, nil unless exclusive
	// descriptors are enforced. It is only updated with mu held, so that it
	// always agrees with set.
	owners  *ownerIndex
	waiters sync.WaitGroup
	gen     uint64
	mu      sync.Mutex
	id      QueueID
	dead    bool
}

func newQueue(id QueueID, gen uint64, drv driver, owners *ownerIndex, maxRegistrations int) *queue {
	return &queue{
		drv:    drv,
		set:    newInterestSet(maxRegistrations),
		owners: owners,
		gen:    gen,
		id:     id,
	}
}

// add inserts a registration and extends the driver's interest to kind.
// The caller validates fd and kind.
func (q *queue) add(fd int, kind Kind, shared bool, data any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dead {
		return ErrInvalidQueue
	}
	if fd > q.drv.limit() {
		return fmt.Errorf("%w: descriptor exceeds %s limit %d", ErrInvalidArgument, q.drv.backend(), q.drv.limit())
	}

	undo, err := q.owners.acquire(fd, q.id, shared)
	if err != nil {
		return err
	}

	old := q.set.kinds(fd)
	highFD := q.set.highFD

	r, err := q.set.add(fd, kind, shared, data)
	if err != nil {
		undo()
		return err
	}

	if err := q.drv.control(fd, old, old|kind); err != nil {
		q.set.discard(r, highFD)
		undo()
		return err
	}

	return nil
}

// modify upserts the registration for (fd, kind).
func (q *queue) modify(fd int, kind Kind, data any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dead {
		return ErrInvalidQueue
	}
	if !q.set.inRange(fd) {
		return ErrInvalidDescriptor
	}

	// an insert inherits the descriptor's sharing mode, see upsert
	shared, _ := q.set.sharing(fd)
	undo, err := q.owners.acquire(fd, q.id, shared)
	if err != nil {
		return err
	}

	old := q.set.kinds(fd)
	highFD := q.set.highFD

	r, inserted, err := q.set.upsert(fd, kind, data)
	if err != nil || !inserted {
		undo()
		return err
	}

	if err := q.drv.control(fd, old, old|kind); err != nil {
		q.set.discard(r, highFD)
		undo()
		return err
	}

	return nil
}

// remove deletes every registration for fd, returning how many existed.
// The registrations are gone even if the driver fails to forget fd.
func (q *queue) remove(fd int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dead {
		return 0, ErrInvalidQueue
	}
	if !q.set.inRange(fd) {
		return 0, ErrInvalidDescriptor
	}

	old := q.set.kinds(fd)
	n := q.set.removeFD(fd)
	if old == 0 {
		return n, nil
	}
	q.owners.release(q.id, fd)

	return n, q.drv.control(fd, old, 0)
}

// lookup returns the data for (fd, kind). Exceptional resolves to the
// Readable registration, falling back to the Writable one.
func (q *queue) lookup(fd int, kind Kind) (any, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dead {
		return nil, ErrInvalidQueue
	}

	if kind.valid() {
		if data, ok := q.set.lookup(fd, kind); ok {
			return data, nil
		}
		return nil, ErrNotFound
	}

	if kind == Exceptional {
		for _, k := range [...]Kind{Readable, Writable} {
			if data, ok := q.set.lookup(fd, k); ok {
				return data, nil
			}
		}
	}

	return nil, ErrNotFound
}

func (q *queue) count() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dead {
		return 0, ErrInvalidQueue
	}
	return q.set.len(), nil
}

// beginWait registers an in-flight wait, and takes the interest set
// snapshot, if the driver needs one. Every successful call must be paired
// with endWait.
func (q *queue) beginWait() (*snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dead {
		return nil, ErrInvalidQueue
	}
	q.waiters.Add(1)

	if q.drv.snapshots() {
		return q.set.snapshot(), nil
	}
	return nil, nil
}

// endWait converts the driver's results to events, dropping any whose
// registration was removed while the wait was in flight.
func (q *queue) endWait(ready []readiness, waitErr error) (events []Event, dropped int, err error) {
	defer q.waiters.Done()

	if waitErr != nil {
		return nil, 0, waitErr
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dead {
		return nil, 0, ErrInvalidQueue
	}

	if len(ready) != 0 {
		events = make([]Event, 0, len(ready))
	}
	for _, r := range ready {
		kinds := q.set.kinds(r.fd)
		if kinds == 0 || (r.kind != Exceptional && kinds&r.kind == 0) {
			dropped++
			continue
		}
		events = append(events, Event{
			FD:    r.fd,
			Kind:  r.kind,
			Queue: q.id,
			gen:   q.gen,
		})
	}

	return events, dropped, nil
}

// kill marks the queue dead and drops its registrations, releasing the
// descriptors it held, and returning how many registrations there were.
func (q *queue) kill() (registrations int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dead {
		return 0, ErrInvalidQueue
	}
	q.dead = true

	q.owners.release(q.id, q.set.descriptors()...)
	registrations = q.set.len()
	q.set.clear()

	return registrations, nil
}

// shutdown wakes any in-flight waits, waits for them to return, then
// releases the driver. The queue must have been killed.
func (q *queue) shutdown() error {
	done := make(chan struct{})
	go func() {
		q.waiters.Wait()
		close(done)
	}()

	// concurrent waiters may consume each other's wake-up, so repeat it
	// until all of them have returned
	var wakeErr error
	for {
		if err := q.drv.wake(); err != nil && wakeErr == nil {
			wakeErr = err
		}
		select {
		case <-done:
			if err := q.drv.close(); err != nil {
				return err
			}
			return wakeErr
		case <-time.After(shutdownWakeInterval):
		}
	}
}

// wake interrupts in-flight waits.
func (q *queue) wake() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dead {
		return ErrInvalidQueue
	}
	return q.drv.wake()
}
