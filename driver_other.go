//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package ioqueue

var availableBackends []Backend

func newDriver(Backend) (driver, error) {
	return nil, ErrUnsupported
}
