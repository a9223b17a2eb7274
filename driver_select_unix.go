//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package ioqueue

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// selectSetSize is FD_SETSIZE, the number of descriptors an fd_set holds.
const selectSetSize = int(unsafe.Sizeof(unix.FdSet{})) * 8

// selectDriver is the portable fallback. It keeps no registrations of its
// own, every wait submits a snapshot of the interest set to select(2), then
// scans it in ascending descriptor order, Readable before Writable.
type selectDriver struct {
	waker *wakeFD
}

func newSelectDriver() (driver, error) {
	wake, err := newWakeFD()
	if err != nil {
		return nil, backendError(BackendSelect, "wake", err)
	}
	if wake.r >= selectSetSize {
		_ = wake.close()
		return nil, backendError(BackendSelect, "wake", unix.EINVAL)
	}
	return &selectDriver{waker: wake}, nil
}

func (d *selectDriver) backend() Backend { return BackendSelect }

func (d *selectDriver) snapshots() bool { return true }

func (d *selectDriver) limit() int { return selectSetSize - 1 }

// control keeps no state, the interest set is the only registration. It
// only checks that a newly watched descriptor is open, failing with EBADF as
// epoll_ctl and kevent would.
func (d *selectDriver) control(fd int, old, next Kind) error {
	if next&^old == 0 {
		return nil
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return backendError(BackendSelect, "fcntl", err)
	}
	return nil
}

func (d *selectDriver) wait(snap *snapshot, ready []readiness, timeout time.Duration) (int, error) {
	var rset, wset unix.FdSet
	for _, fd := range snap.read {
		rset.Set(fd)
	}
	for _, fd := range snap.write {
		wset.Set(fd)
	}
	rset.Set(d.waker.r)

	nfd := max(snap.maxFD, d.waker.r) + 1

	var tv *unix.Timeval
	if timeout >= 0 {
		// round up to the microsecond resolution of select
		d := min(timeout, maxTimeout)
		d = (d + time.Microsecond - 1) / time.Microsecond * time.Microsecond
		v := unix.NsecToTimeval(int64(d))
		tv = &v
	}

	n, err := unix.Select(nfd, &rset, &wset, nil, tv)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, backendError(BackendSelect, "select", err)
	}
	if n <= 0 {
		// the sets are only meaningful when something is ready
		return 0, nil
	}

	if rset.IsSet(d.waker.r) {
		d.waker.drain()
		n--
	}

	// n is the number of set bits left to consume
	count := 0
	i, j := 0, 0
	for (i < len(snap.read) || j < len(snap.write)) && count < len(ready) && n > 0 {
		fd := -1
		if i < len(snap.read) {
			fd = snap.read[i]
		}
		if j < len(snap.write) && (fd < 0 || snap.write[j] < fd) {
			fd = snap.write[j]
		}

		if i < len(snap.read) && snap.read[i] == fd {
			i++
			if rset.IsSet(fd) {
				ready[count] = readiness{fd: fd, kind: Readable}
				count++
				n--
			}
		}

		if j < len(snap.write) && snap.write[j] == fd {
			j++
			if count < len(ready) && n > 0 && wset.IsSet(fd) {
				ready[count] = readiness{fd: fd, kind: Writable}
				count++
				n--
			}
		}
	}

	return count, nil
}

func (d *selectDriver) wake() error {
	return backendError(BackendSelect, "wake", d.waker.signal())
}

func (d *selectDriver) close() error {
	return backendError(BackendSelect, "close", d.waker.close())
}
