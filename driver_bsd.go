//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package ioqueue

var availableBackends = []Backend{BackendKqueue, BackendSelect}

func newDriver(b Backend) (driver, error) {
	switch b {
	case BackendAuto, BackendKqueue:
		return newKqueueDriver()
	case BackendSelect:
		return newSelectDriver()
	default:
		return nil, ErrUnsupported
	}
}
