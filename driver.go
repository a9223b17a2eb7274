package ioqueue

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Backend selects the kernel facility a [Registry] uses to detect readiness.
type Backend uint8

const (
	// BackendAuto picks the native multiplexer for the platform: epoll on
	// Linux, kqueue on Darwin and the BSDs.
	BackendAuto Backend = iota
	// BackendEpoll is the Linux epoll(7) multiplexer.
	BackendEpoll
	// BackendKqueue is the Darwin/BSD kqueue(2) multiplexer.
	BackendKqueue
	// BackendSelect is the portable select(2) fallback. It takes a snapshot
	// of the interest set on every wait, and cannot watch descriptors at or
	// above FD_SETSIZE.
	BackendSelect
)

// String returns the backend name.
func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendEpoll:
		return "epoll"
	case BackendKqueue:
		return "kqueue"
	case BackendSelect:
		return "select"
	default:
		return "backend(" + strconv.Itoa(int(b)) + ")"
	}
}

// ParseBackend returns the backend named by [Backend.String]. It fails with
// [ErrInvalidArgument] for unknown names. Availability is checked by
// [NewRegistry], not here.
func ParseBackend(name string) (Backend, error) {
	for _, b := range [...]Backend{BackendAuto, BackendEpoll, BackendKqueue, BackendSelect} {
		if b.String() == name {
			return b, nil
		}
	}
	return BackendAuto, fmt.Errorf("%w: unknown backend %q", ErrInvalidArgument, name)
}

// Backends returns the backends available on this platform, native first.
func Backends() []Backend {
	return append([]Backend(nil), availableBackends...)
}

// driver translates interest set mutations into native registrations, and
// native waits into readiness pairs. Implementations must allow wait to run
// concurrently with control, and with wake.
type driver interface {
	backend() Backend

	// control transitions fd from watching the kinds in old to watching the
	// kinds in next. A zero old adds the descriptor, a zero next removes it.
	control(fd int, old, next Kind) error

	// wait blocks for up to timeout, writing at most len(ready) entries.
	// The snap argument is nil unless snapshots returns true.
	wait(snap *snapshot, ready []readiness, timeout time.Duration) (int, error)

	// snapshots reports whether wait needs a copy of the interest set.
	snapshots() bool

	// limit is the largest descriptor the driver can watch.
	limit() int

	wake() error
	close() error
}

// maxTimeout is the longest bounded wait, the epoll_wait limit. Longer
// timeouts are clamped to it.
const maxTimeout = math.MaxInt32 * time.Millisecond

// timeoutMillis converts a wait timeout to the millisecond convention used
// by epoll_wait: -1 blocks, 0 polls, anything else rounds up.
func timeoutMillis(d time.Duration) int {
	switch {
	case d < 0:
		return -1
	case d == 0:
		return 0
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
