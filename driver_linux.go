//go:build linux

package ioqueue

var availableBackends = []Backend{BackendEpoll, BackendSelect}

func newDriver(b Backend) (driver, error) {
	switch b {
	case BackendAuto, BackendEpoll:
		return newEpollDriver()
	case BackendSelect:
		return newSelectDriver()
	default:
		return nil, ErrUnsupported
	}
}
