//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package ioqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// testPipe returns a pipe, closed on test cleanup. The write end is
// immediately writable, the read end becomes readable after testWrite.
func testPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// testSocketpair returns a connected pair of unix stream sockets, both
// writable, closed on test cleanup.
func testSocketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func testWrite(t *testing.T, fd int) {
	t.Helper()
	n, err := unix.Write(fd, []byte("x"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

// testUnusedFD returns a descriptor number that is not open, within the
// range of every backend.
func testUnusedFD(t *testing.T) int {
	t.Helper()
	for fd := 900; fd < 1000; fd++ {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err == unix.EBADF {
			return fd
		}
	}
	t.Skip("no unused descriptor found")
	return -1
}

// forEachBackend runs fn as a subtest, once per available backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, b Backend)) {
	t.Helper()
	backends := Backends()
	require.NotEmpty(t, backends)
	for _, b := range backends {
		t.Run(b.String(), func(t *testing.T) {
			fn(t, b)
		})
	}
}

// newTestRegistry creates a registry using backend b, closed on test
// cleanup.
func newTestRegistry(t *testing.T, b Backend, opts ...Option) *Registry {
	t.Helper()
	reg, err := NewRegistry(append([]Option{WithBackend(b)}, opts...)...)
	require.NoError(t, err)
	require.Equal(t, b, reg.Backend())
	t.Cleanup(func() {
		assert.NoError(t, reg.Close())
	})
	return reg
}

// newTestQueue creates a registry using backend b, and one queue.
func newTestQueue(t *testing.T, b Backend, opts ...Option) (*Registry, QueueID) {
	t.Helper()
	reg := newTestRegistry(t, b, opts...)
	id, err := reg.Create()
	require.NoError(t, err)
	return reg, id
}

func eventKeys(events []Event) []readiness {
	keys := make([]readiness, len(events))
	for i, ev := range events {
		keys[i] = readiness{fd: ev.FD, kind: ev.Kind}
	}
	return keys
}
