//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package ioqueue

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// wakeFD interrupts a blocked native wait. The read end is watched by every
// driver, but never enters the interest set.
type wakeFD struct {
	r, w int
}

func newWakeFD() (*wakeFD, error) {
	r, w, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &wakeFD{r: r, w: w}, nil
}

// signal makes the read end readable. A full pipe or saturated counter
// already guarantees a pending wake-up, so EAGAIN is not an error.
func (x *wakeFD) signal() error {
	// native endianness, as eventfd expects
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	if _, err := unix.Write(x.w, buf); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

// drain consumes all pending wake-ups.
func (x *wakeFD) drain() {
	var buf [64]byte
	for {
		if _, err := unix.Read(x.r, buf[:]); err != nil {
			return
		}
	}
}

func (x *wakeFD) close() error {
	err := unix.Close(x.r)
	if x.w != x.r {
		if e := unix.Close(x.w); err == nil {
			err = e
		}
	}
	return err
}
