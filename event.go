package ioqueue

import (
	"strconv"
	"time"
)

// QueueID identifies a queue within a [Registry]. It is stable for the
// lifetime of the queue.
type QueueID int

// Kind is the interest kind of a registration, or the readiness reported by
// an [Event].
type Kind uint8

const (
	// Readable indicates the descriptor can be read without blocking.
	Readable Kind = 1 << iota
	// Writable indicates the descriptor can be written without blocking.
	Writable

	// Exceptional is never a valid registration kind. Events carrying it
	// report an error condition on the descriptor.
	Exceptional Kind = 1 << 7
)

// Wait timeouts.
const (
	// NoWait polls the backend without blocking.
	NoWait time.Duration = 0
	// Forever blocks until at least one descriptor is ready, or the queue is
	// woken. Any negative timeout has the same effect.
	Forever time.Duration = -1
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case Readable:
		return "readable"
	case Writable:
		return "writable"
	case Exceptional:
		return "exceptional"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// valid reports whether k may be used to register interest.
func (k Kind) valid() bool {
	return k == Readable || k == Writable
}

// Event is a readiness notification produced by [Registry.Wait]. It is only
// meaningful until resolved, see [Registry.Resolve].
type Event struct {
	FD    int
	Kind  Kind
	Queue QueueID

	// generation of the owning queue slot, detects recycled ids, zero if
	// the event was not produced by Wait
	gen uint64
}

// IsError reports whether the event describes an error condition, i.e. its
// kind is neither Readable nor Writable.
func (e Event) IsError() bool {
	return e.Kind != Readable && e.Kind != Writable
}

// readiness is the raw (descriptor, kind) pair drivers report.
type readiness struct {
	fd   int
	kind Kind
}
