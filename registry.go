package ioqueue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	fifo "github.com/eapache/queue"
)

// Registry owns a bounded table of readiness queues. Queues are created and
// destroyed explicitly, and referenced by [QueueID].
//
// All methods are safe for concurrent use. Operations on one queue are
// serialized by that queue's lock, except [Registry.Wait], which blocks
// without holding it.
type Registry struct {
	log    registryLog
	owners *ownerIndex
	// free holds released slot ids, least recently released first
	free  *fifo.Queue
	slots []atomic.Pointer[queue]
	// gens is the generation last handed out per slot, guarded by mu
	gens             []uint64
	mu               sync.Mutex
	backend          Backend
	maxRegistrations int
	live             int
	closed           bool
}

// NewRegistry creates a registry. It fails with [ErrUnsupported] if the
// configured backend is not available on this platform.
func NewRegistry(opts ...Option) (*Registry, error) {
	cfg, err := resolveRegistryOptions(opts)
	if err != nil {
		return nil, err
	}

	backend, err := resolveBackend(cfg.backend)
	if err != nil {
		return nil, err
	}

	log, err := newRegistryLog(cfg.logger, cfg.errorLogRates)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		log:              log,
		free:             fifo.New(),
		slots:            make([]atomic.Pointer[queue], cfg.maxQueues),
		gens:             make([]uint64, cfg.maxQueues),
		backend:          backend,
		maxRegistrations: cfg.maxRegistrations,
	}
	if cfg.exclusive {
		r.owners = newOwnerIndex()
	}
	for i := 0; i < cfg.maxQueues; i++ {
		r.free.Add(QueueID(i))
	}

	return r, nil
}

// resolveBackend maps BackendAuto to the native backend, and checks b is
// available.
func resolveBackend(b Backend) (Backend, error) {
	if len(availableBackends) == 0 {
		return b, ErrUnsupported
	}
	if b == BackendAuto {
		return availableBackends[0], nil
	}
	for _, v := range availableBackends {
		if v == b {
			return b, nil
		}
	}
	return b, ErrUnsupported
}

// Backend returns the backend every queue of this registry uses.
func (r *Registry) Backend() Backend {
	return r.backend
}

// Len returns the number of live queues.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Create allocates a queue, reusing the least recently destroyed slot.
// It fails with [ErrCapacity] if every slot is live, and [ErrClosed] after
// [Registry.Close].
func (r *Registry) Create() (QueueID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return -1, opError("create", -1, -1, ErrClosed)
	}
	if r.free.Length() == 0 {
		return -1, opError("create", -1, -1, ErrCapacity)
	}

	drv, err := newDriver(r.backend)
	if err != nil {
		r.log.backendFailure(-1, -1, "create", err)
		return -1, opError("create", -1, -1, err)
	}

	id := r.free.Remove().(QueueID)
	r.gens[id]++
	q := newQueue(id, r.gens[id], drv, r.owners, r.maxRegistrations)
	r.slots[id].Store(q)
	r.live++

	r.log.queueCreated(q)

	return id, nil
}

// Destroy tears down a queue. Any wait blocked on it returns
// [ErrInvalidQueue], and the id is invalid until [Registry.Create] hands it
// out again. Data values are dropped, never inspected.
func (r *Registry) Destroy(id QueueID) error {
	q, err := r.get("destroy", id)
	if err != nil {
		return err
	}

	n, err := q.kill()
	if err != nil {
		// lost a race with another Destroy
		return opError("destroy", id, -1, err)
	}

	err = q.shutdown()

	r.mu.Lock()
	r.slots[id].Store(nil)
	r.free.Add(id)
	r.live--
	r.mu.Unlock()

	r.log.queueDestroyed(id, n)

	if err != nil {
		r.log.backendFailure(id, -1, "destroy", err)
		return opError("destroy", id, -1, err)
	}
	return nil
}

// Close destroys every live queue, and causes subsequent calls to Create to
// fail with [ErrClosed]. The first error encountered is returned.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var first error
	for i := range r.slots {
		if r.slots[i].Load() == nil {
			continue
		}
		if err := r.Destroy(QueueID(i)); err != nil && !errors.Is(err, ErrInvalidQueue) && first == nil {
			first = err
		}
	}
	return first
}

// get returns the live queue for id, without taking the registry lock.
func (r *Registry) get(op string, id QueueID) (*queue, error) {
	if id < 0 || int(id) >= len(r.slots) {
		return nil, opError(op, id, -1, ErrInvalidQueue)
	}
	q := r.slots[id].Load()
	if q == nil {
		return nil, opError(op, id, -1, ErrInvalidQueue)
	}
	return q, nil
}

// Add registers interest in kind readiness on fd, associating data with it.
//
// The shared flag records whether fd may also be registered in other
// queues, and is only enforced with [WithExclusiveDescriptors]. Registering
// the same (fd, kind) twice adds a second registration, lookups return the
// oldest.
func (r *Registry) Add(id QueueID, fd int, kind Kind, shared bool, data any) error {
	q, err := r.get("add", id)
	if err != nil {
		return err
	}
	if fd < 0 {
		return opError("add", id, fd, fmt.Errorf("%w: negative descriptor", ErrInvalidArgument))
	}
	if !kind.valid() {
		return opError("add", id, fd, fmt.Errorf("%w: kind %s", ErrInvalidArgument, kind))
	}

	if err := q.add(fd, kind, shared, data); err != nil {
		return r.fail("add", id, fd, err)
	}

	r.log.registration("add", id, fd, kind)

	return nil
}

// Modify replaces the data of the (fd, kind) registration, or adds one, if
// none exists. It fails with [ErrInvalidDescriptor] if fd is negative, or
// greater than any descriptor ever added to the queue.
func (r *Registry) Modify(id QueueID, fd int, kind Kind, data any) error {
	q, err := r.get("modify", id)
	if err != nil {
		return err
	}
	if !kind.valid() {
		return opError("modify", id, fd, fmt.Errorf("%w: kind %s", ErrInvalidArgument, kind))
	}

	if err := q.modify(fd, kind, data); err != nil {
		return r.fail("modify", id, fd, err)
	}

	r.log.registration("modify", id, fd, kind)

	return nil
}

// Remove deletes every registration for fd, of either kind. Removing a
// descriptor with no registrations is not an error, but fd must be within
// the range accepted by [Registry.Modify].
func (r *Registry) Remove(id QueueID, fd int) error {
	q, err := r.get("remove", id)
	if err != nil {
		return err
	}

	n, err := q.remove(fd)
	if err != nil {
		return r.fail("remove", id, fd, err)
	}

	r.log.removed(id, fd, n)

	return nil
}

// Lookup returns the data registered for (fd, kind), or [ErrNotFound].
// Exceptional resolves the same way as [Registry.Resolve].
func (r *Registry) Lookup(id QueueID, fd int, kind Kind) (any, error) {
	q, err := r.get("lookup", id)
	if err != nil {
		return nil, err
	}
	data, err := q.lookup(fd, kind)
	if err != nil {
		return nil, opError("lookup", id, fd, err)
	}
	return data, nil
}

// Count returns the number of registrations in the queue.
func (r *Registry) Count(id QueueID) (int, error) {
	q, err := r.get("count", id)
	if err != nil {
		return 0, err
	}
	n, err := q.count()
	if err != nil {
		return 0, opError("count", id, -1, err)
	}
	return n, nil
}

// Wait blocks until at least one registered descriptor is ready, the
// timeout elapses, or the queue is woken, returning at most capacity events.
//
// A zero timeout ([NoWait]) polls, a negative one ([Forever]) blocks
// indefinitely. Timeouts are rounded up to the backend's resolution. A zero
// capacity returns immediately, without consulting the backend.
//
// Readiness is level-triggered: anything not returned, because capacity was
// reached, is reported again by the next call. Events are only returned for
// descriptors still registered when the wait completes. Any backend failure
// fails the whole call, with a [*BackendError].
func (r *Registry) Wait(id QueueID, capacity int, timeout time.Duration) ([]Event, error) {
	q, err := r.get("wait", id)
	if err != nil {
		return nil, err
	}
	if capacity < 0 {
		return nil, opError("wait", id, -1, fmt.Errorf("%w: negative capacity %d", ErrInvalidArgument, capacity))
	}
	if capacity == 0 {
		return nil, nil
	}

	snap, err := q.beginWait()
	if err != nil {
		return nil, opError("wait", id, -1, err)
	}

	// each registration is reported at most once
	ready := make([]readiness, min(capacity, r.maxRegistrations))
	n, waitErr := q.drv.wait(snap, ready, timeout)

	events, dropped, err := q.endWait(ready[:n], waitErr)
	if err != nil {
		return nil, r.fail("wait", id, -1, err)
	}

	r.log.waited(id, len(events), dropped)

	return events, nil
}

// Resolve returns the data of the registration an event refers to. It fails
// with [ErrInvalidQueue] if the queue has since been destroyed, even if its
// id was reused, and [ErrNotFound] if the registration has since been
// removed. Exceptional events resolve to the descriptor's Readable
// registration, else its Writable one.
//
// An Event constructed by the caller, rather than returned by Wait, carries
// no generation, and resolves against whatever queue currently holds its id.
func (r *Registry) Resolve(ev Event) (any, error) {
	q, err := r.get("resolve", ev.Queue)
	if err != nil {
		return nil, err
	}
	if ev.gen != 0 && q.gen != ev.gen {
		return nil, opError("resolve", ev.Queue, ev.FD, ErrInvalidQueue)
	}
	data, err := q.lookup(ev.FD, ev.Kind)
	if err != nil {
		return nil, opError("resolve", ev.Queue, ev.FD, err)
	}
	return data, nil
}

// Wake interrupts a blocked [Registry.Wait] on the queue, which returns
// whatever is ready, possibly nothing. If no wait is in flight, the next one
// returns early instead.
func (r *Registry) Wake(id QueueID) error {
	q, err := r.get("wake", id)
	if err != nil {
		return err
	}
	if err := q.wake(); err != nil {
		return r.fail("wake", id, -1, err)
	}
	return nil
}

// fail wraps err with the operation context, logging backend failures.
func (r *Registry) fail(op string, id QueueID, fd int, err error) error {
	if errors.Is(err, ErrBackend) {
		r.log.backendFailure(id, fd, op, err)
	}
	return opError(op, id, fd, err)
}
