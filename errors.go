package ioqueue

import (
	"errors"
	"fmt"
	"strconv"
)

// Standard errors. Every error returned by this package matches exactly one
// of ErrInvalidQueue, ErrInvalidArgument, ErrCapacity, ErrInvalidDescriptor,
// ErrNotFound or ErrBackend, via [errors.Is].
var (
	ErrInvalidQueue      = errors.New("ioqueue: invalid queue")
	ErrInvalidArgument   = errors.New("ioqueue: invalid argument")
	ErrCapacity          = errors.New("ioqueue: capacity exhausted")
	ErrInvalidDescriptor = errors.New("ioqueue: invalid descriptor")
	ErrNotFound          = errors.New("ioqueue: registration not found")
	ErrBackend           = errors.New("ioqueue: backend failure")

	// ErrClosed is returned by Create after Registry.Close.
	ErrClosed = fmt.Errorf("%w: registry closed", ErrInvalidQueue)

	// ErrUnsupported indicates the requested backend is not available on
	// this platform.
	ErrUnsupported = fmt.Errorf("%w: backend unsupported on this platform", ErrInvalidArgument)

	// ErrDescriptorInUse is returned by Add and Modify, when exclusive
	// descriptors are enforced, see [WithExclusiveDescriptors].
	ErrDescriptorInUse = fmt.Errorf("%w: descriptor held exclusively by another queue", ErrInvalidArgument)
)

// OpError records the operation, queue and descriptor that failed.
// Err is always one of the package sentinels, or a *BackendError.
type OpError struct {
	Err   error
	Op    string
	// Queue is -1 for operations that do not take a queue.
	Queue QueueID
	// FD is -1 for operations that do not take a descriptor.
	FD int
}

// Error implements the error interface.
func (e *OpError) Error() string {
	s := "ioqueue: " + e.Op
	if e.Queue >= 0 {
		s += " queue=" + strconv.Itoa(int(e.Queue))
	}
	if e.FD >= 0 {
		s += " fd=" + strconv.Itoa(e.FD)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *OpError) Unwrap() error {
	return e.Err
}

// BackendError wraps a failed native multiplexing call. The OS error is
// available via [errors.Is] / [errors.As], e.g. errors.Is(err, unix.EBADF).
type BackendError struct {
	Err     error
	Op      string
	Backend Backend
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Err == nil {
		return "ioqueue: " + e.Backend.String() + " " + e.Op + " failed"
	}
	return "ioqueue: " + e.Backend.String() + " " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the OS error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrBackend, in addition to the wrapped chain.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

func opError(op string, q QueueID, fd int, err error) error {
	return &OpError{Op: op, Queue: q, FD: fd, Err: err}
}

func backendError(b Backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Backend: b, Err: err}
}
