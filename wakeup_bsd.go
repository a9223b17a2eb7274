//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package ioqueue

import (
	"golang.org/x/sys/unix"
)

// createWakeFd creates a non-blocking, close-on-exec self-pipe for wake-up
// notifications. Returns the read end and the write end.
func createWakeFd() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}

	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return -1, -1, err
		}
	}

	return fds[0], fds[1], nil
}
