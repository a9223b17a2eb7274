//go:build linux

package ioqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestKindsToEpoll(t *testing.T) {
	assert.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLRDHUP), kindsToEpoll(Readable))
	assert.Equal(t, uint32(unix.EPOLLOUT), kindsToEpoll(Writable))
	assert.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLOUT), kindsToEpoll(Readable|Writable))
	assert.Zero(t, kindsToEpoll(0))
}

func TestEpollToReadiness(t *testing.T) {
	both := Readable | Writable
	for _, tt := range []struct {
		name   string
		events uint32
		kinds  Kind
		size   int
		want   []readiness
	}{
		{
			name:   "readable",
			events: unix.EPOLLIN,
			kinds:  both,
			size:   4,
			want:   []readiness{{fd: 9, kind: Readable}},
		},
		{
			name:   "writable",
			events: unix.EPOLLOUT,
			kinds:  both,
			size:   4,
			want:   []readiness{{fd: 9, kind: Writable}},
		},
		{
			name:   "both",
			events: unix.EPOLLIN | unix.EPOLLOUT,
			kinds:  both,
			size:   4,
			want:   []readiness{{fd: 9, kind: Readable}, {fd: 9, kind: Writable}},
		},
		{
			name:   "both truncated",
			events: unix.EPOLLIN | unix.EPOLLOUT,
			kinds:  both,
			size:   1,
			want:   []readiness{{fd: 9, kind: Readable}},
		},
		{
			name:   "error only",
			events: unix.EPOLLERR | unix.EPOLLIN | unix.EPOLLOUT,
			kinds:  both,
			size:   4,
			want:   []readiness{{fd: 9, kind: Exceptional}},
		},
		{
			name:   "error regardless of interest",
			events: unix.EPOLLERR,
			kinds:  Writable,
			size:   4,
			want:   []readiness{{fd: 9, kind: Exceptional}},
		},
		{
			name:   "hang-up reports registered kinds",
			events: unix.EPOLLHUP,
			kinds:  Writable,
			size:   4,
			want:   []readiness{{fd: 9, kind: Writable}},
		},
		{
			name:   "peer shutdown is readable",
			events: unix.EPOLLRDHUP,
			kinds:  Readable,
			size:   4,
			want:   []readiness{{fd: 9, kind: Readable}},
		},
		{
			name:   "unregistered kind ignored",
			events: unix.EPOLLOUT,
			kinds:  Readable,
			size:   4,
		},
		{
			name:   "no room",
			events: unix.EPOLLIN,
			kinds:  both,
			size:   0,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]readiness, tt.size)
			n := epollToReadiness(dst, 9, tt.events, tt.kinds)
			require.LessOrEqual(t, n, tt.size)
			if len(tt.want) == 0 {
				assert.Zero(t, n)
				return
			}
			assert.Equal(t, tt.want, dst[:n])
		})
	}
}

func TestEpollDriver_ErrorEvent(t *testing.T) {
	reg, id := newTestQueue(t, BackendEpoll)

	// a write to a socket whose peer has gone raises EPOLLERR (EPIPE), or at
	// least EPOLLHUP, on the remaining end
	a, b := testSocketpair(t)
	require.NoError(t, reg.Add(id, a, Writable, true, "w"))
	require.NoError(t, unix.Close(b))
	_, _ = unix.Write(a, []byte("x"))

	events, err := reg.Wait(id, 8, NoWait)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, a, events[0].FD)

	data, err := reg.Resolve(events[0])
	require.NoError(t, err)
	assert.Equal(t, "w", data)
}

func TestEpollDriver_ControlRetries(t *testing.T) {
	drv, err := newEpollDriver()
	require.NoError(t, err)
	defer drv.close()

	r, _ := testPipe(t)

	// adding an fd the epoll set already holds becomes a modify
	require.NoError(t, drv.control(r, 0, Readable))
	require.NoError(t, drv.control(r, 0, Readable))

	// modifying an fd it does not hold becomes an add
	require.NoError(t, drv.control(r, Readable, 0))
	require.NoError(t, drv.control(r, Readable, Readable|Writable))

	// deleting twice is not an error
	require.NoError(t, drv.control(r, Readable|Writable, 0))
	require.NoError(t, drv.control(r, Readable|Writable, 0))
}
