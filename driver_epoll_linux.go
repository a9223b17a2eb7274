//go:build linux

package ioqueue

import (
	"math"
	"time"

	"golang.org/x/sys/unix"
)

// epollDriver watches descriptors using a per-queue epoll instance.
//
// Registrations are level-triggered, so readiness that does not fit in the
// caller's buffer is reported again by the next wait. The registered kinds
// travel with each epoll_event (in Pad), so wait can discard conditions the
// kernel reports regardless of interest (EPOLLHUP) without any locking.
type epollDriver struct {
	waker *wakeFD
	epfd  int
}

func newEpollDriver() (driver, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, backendError(BackendEpoll, "epoll_create1", err)
	}

	wake, err := newWakeFD()
	if err != nil {
		_ = unix.Close(epfd)
		return nil, backendError(BackendEpoll, "eventfd", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wake.r)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wake.r, &ev); err != nil {
		_ = wake.close()
		_ = unix.Close(epfd)
		return nil, backendError(BackendEpoll, "epoll_ctl", err)
	}

	return &epollDriver{epfd: epfd, waker: wake}, nil
}

func (d *epollDriver) backend() Backend { return BackendEpoll }

func (d *epollDriver) snapshots() bool { return false }

func (d *epollDriver) limit() int { return math.MaxInt32 }

func (d *epollDriver) control(fd int, old, next Kind) error {
	if old == next {
		return nil
	}

	if next == 0 {
		err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		switch err {
		case nil, unix.ENOENT, unix.EBADF:
			// closing a descriptor removes it from every epoll set
			return nil
		}
		return backendError(BackendEpoll, "epoll_ctl(del)", err)
	}

	ev := unix.EpollEvent{
		Events: kindsToEpoll(next),
		Fd:     int32(fd),
		Pad:    int32(next),
	}

	if old == 0 {
		err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
		if err == unix.EEXIST {
			err = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
		}
		return backendError(BackendEpoll, "epoll_ctl(add)", err)
	}

	err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	if err == unix.ENOENT {
		// the descriptor was closed and reused since it was added
		err = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	}
	return backendError(BackendEpoll, "epoll_ctl(mod)", err)
}

func (d *epollDriver) wait(_ *snapshot, ready []readiness, timeout time.Duration) (int, error) {
	// one extra slot, for the wake descriptor
	events := make([]unix.EpollEvent, len(ready)+1)

	n, err := unix.EpollWait(d.epfd, events, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, backendError(BackendEpoll, "epoll_wait", err)
	}

	count := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == d.waker.r {
			d.waker.drain()
			continue
		}
		count += epollToReadiness(ready[count:], fd, events[i].Events, Kind(events[i].Pad))
		if count == len(ready) {
			break
		}
	}

	return count, nil
}

func (d *epollDriver) wake() error {
	return backendError(BackendEpoll, "wake", d.waker.signal())
}

func (d *epollDriver) close() error {
	err := unix.Close(d.epfd)
	if e := d.waker.close(); err == nil {
		err = e
	}
	return backendError(BackendEpoll, "close", err)
}

// kindsToEpoll converts registered kinds to epoll event flags.
func kindsToEpoll(kinds Kind) uint32 {
	var events uint32
	if kinds&Readable != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if kinds&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// epollToReadiness decodes one epoll event into dst, restricted to the
// registered kinds, returning the number of entries written.
//
// EPOLLERR is reported alone, as Exceptional. A hang-up makes the
// descriptor ready for every registered kind, so the caller observes EOF or
// EPIPE from its next read or write.
func epollToReadiness(dst []readiness, fd int, events uint32, kinds Kind) int {
	if len(dst) == 0 {
		return 0
	}

	if events&unix.EPOLLERR != 0 {
		dst[0] = readiness{fd: fd, kind: Exceptional}
		return 1
	}

	n := 0
	if kinds&Readable != 0 && events&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
		dst[n] = readiness{fd: fd, kind: Readable}
		n++
	}
	if n < len(dst) && kinds&Writable != 0 && events&(unix.EPOLLOUT|unix.EPOLLHUP) != 0 {
		dst[n] = readiness{fd: fd, kind: Writable}
		n++
	}
	return n
}
