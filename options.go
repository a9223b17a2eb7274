package ioqueue

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

// Default bounds.
const (
	DefaultMaxQueues        = 10
	DefaultMaxRegistrations = 1024
)

// defaultErrorLogRates limits backend failure logs, per queue and operation.
var defaultErrorLogRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 30,
}

// registryOptions holds configuration options for Registry creation.
type registryOptions struct {
	logger           *logiface.Logger[logiface.Event]
	errorLogRates    map[time.Duration]int
	maxQueues        int
	maxRegistrations int
	backend          Backend
	exclusive        bool
}

// Option configures a Registry instance.
type Option interface {
	applyRegistry(*registryOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRegistryFunc func(*registryOptions) error
}

func (o *optionImpl) applyRegistry(opts *registryOptions) error {
	return o.applyRegistryFunc(opts)
}

// WithMaxQueues bounds the number of live queues. Defaults to
// DefaultMaxQueues.
func WithMaxQueues(n int) Option {
	return &optionImpl{func(opts *registryOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: max queues must be positive, got %d", ErrInvalidArgument, n)
		}
		opts.maxQueues = n
		return nil
	}}
}

// WithMaxRegistrations bounds the number of registrations per queue.
// Defaults to DefaultMaxRegistrations.
func WithMaxRegistrations(n int) Option {
	return &optionImpl{func(opts *registryOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: max registrations must be positive, got %d", ErrInvalidArgument, n)
		}
		opts.maxRegistrations = n
		return nil
	}}
}

// WithBackend selects the readiness backend used by every queue.
// Defaults to BackendAuto.
func WithBackend(b Backend) Option {
	return &optionImpl{func(opts *registryOptions) error {
		if b > BackendSelect {
			return fmt.Errorf("%w: unknown backend %s", ErrInvalidArgument, b)
		}
		opts.backend = b
		return nil
	}}
}

// WithLogger attaches a structured logger. Queue lifecycle is logged at
// debug level, registration and wait traffic at trace level, and backend
// failures at error level. A nil logger (the default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithErrorLogRates sets the sliding window rate limits applied to backend
// failure logs, per queue and operation. An empty map disables limiting.
// The rates must be accepted by catrate.NewLimiter.
func WithErrorLogRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.errorLogRates = rates
		return nil
	}}
}

// WithExclusiveDescriptors enables enforcement of the shared flag passed to
// Registry.Add: a descriptor registered with shared=false in one queue may
// not be registered in any other queue, and vice versa. Disabled by default,
// in which case the flag is only recorded.
func WithExclusiveDescriptors(enabled bool) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.exclusive = enabled
		return nil
	}}
}

// resolveRegistryOptions applies Option instances to registryOptions.
func resolveRegistryOptions(opts []Option) (*registryOptions, error) {
	cfg := &registryOptions{
		errorLogRates:    defaultErrorLogRates,
		maxQueues:        DefaultMaxQueues,
		maxRegistrations: DefaultMaxRegistrations,
		backend:          BackendAuto,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRegistry(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
