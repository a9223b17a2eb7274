//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package ioqueue

import (
	"math"
	"time"

	"golang.org/x/sys/unix"
)

// kqueueDriver watches descriptors using a per-queue kqueue, with one
// EVFILT_READ and/or EVFILT_WRITE filter per descriptor.
type kqueueDriver struct {
	waker *wakeFD
	kq    int
}

func newKqueueDriver() (driver, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, backendError(BackendKqueue, "kqueue", err)
	}
	unix.CloseOnExec(kq)

	wake, err := newWakeFD()
	if err != nil {
		_ = unix.Close(kq)
		return nil, backendError(BackendKqueue, "pipe", err)
	}

	if _, err := unix.Kevent(kq, kindsToKevents(wake.r, Readable, unix.EV_ADD|unix.EV_ENABLE), nil, nil); err != nil {
		_ = wake.close()
		_ = unix.Close(kq)
		return nil, backendError(BackendKqueue, "kevent", err)
	}

	return &kqueueDriver{kq: kq, waker: wake}, nil
}

func (d *kqueueDriver) backend() Backend { return BackendKqueue }

func (d *kqueueDriver) snapshots() bool { return false }

func (d *kqueueDriver) limit() int { return math.MaxInt32 }

func (d *kqueueDriver) control(fd int, old, next Kind) error {
	// one change per call, kevent stops at the first failing change
	for _, kev := range kindsToKevents(fd, old&^next, unix.EV_DELETE) {
		_, err := unix.Kevent(d.kq, []unix.Kevent_t{kev}, nil, nil)
		switch err {
		case nil, unix.ENOENT, unix.EBADF:
			// closing a descriptor removes its filters
		default:
			return backendError(BackendKqueue, "kevent(delete)", err)
		}
	}

	if add := next &^ old; add != 0 {
		if _, err := unix.Kevent(d.kq, kindsToKevents(fd, add, unix.EV_ADD|unix.EV_ENABLE), nil, nil); err != nil {
			return backendError(BackendKqueue, "kevent(add)", err)
		}
	}

	return nil
}

func (d *kqueueDriver) wait(_ *snapshot, ready []readiness, timeout time.Duration) (int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		v := unix.NsecToTimespec(int64(min(timeout, maxTimeout)))
		ts = &v
	}

	// one extra slot, for the wake descriptor
	events := make([]unix.Kevent_t, len(ready)+1)

	n, err := unix.Kevent(d.kq, nil, events, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, backendError(BackendKqueue, "kevent(wait)", err)
	}

	count := 0
	for i := 0; i < n && count < len(ready); i++ {
		kev := &events[i]
		fd := int(kev.Ident)
		if fd == d.waker.r && kev.Filter == unix.EVFILT_READ {
			d.waker.drain()
			continue
		}
		kind, ok := keventToKind(kev)
		if !ok {
			continue
		}
		ready[count] = readiness{fd: fd, kind: kind}
		count++
	}

	return count, nil
}

func (d *kqueueDriver) wake() error {
	return backendError(BackendKqueue, "wake", d.waker.signal())
}

func (d *kqueueDriver) close() error {
	err := unix.Close(d.kq)
	if e := d.waker.close(); err == nil {
		err = e
	}
	return backendError(BackendKqueue, "close", err)
}

// kindsToKevents converts kinds to kqueue change entries.
func kindsToKevents(fd int, kinds Kind, flags int) []unix.Kevent_t {
	var kevents []unix.Kevent_t

	if kinds&Readable != 0 {
		var kev unix.Kevent_t
		unix.SetKevent(&kev, fd, unix.EVFILT_READ, flags)
		kevents = append(kevents, kev)
	}

	if kinds&Writable != 0 {
		var kev unix.Kevent_t
		unix.SetKevent(&kev, fd, unix.EVFILT_WRITE, flags)
		kevents = append(kevents, kev)
	}

	return kevents
}

// keventToKind classifies a returned kevent. EV_ERROR, and EV_EOF carrying
// a socket error in fflags, are reported as Exceptional. Plain EV_EOF keeps
// the filter's kind, the caller observes EOF on its next read.
func keventToKind(kev *unix.Kevent_t) (Kind, bool) {
	if kev.Flags&unix.EV_ERROR != 0 {
		return Exceptional, true
	}
	if kev.Flags&unix.EV_EOF != 0 && kev.Fflags != 0 {
		return Exceptional, true
	}
	switch kev.Filter {
	case unix.EVFILT_READ:
		return Readable, true
	case unix.EVFILT_WRITE:
		return Writable, true
	}
	return 0, false
}
