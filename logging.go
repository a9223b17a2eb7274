package ioqueue

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// registryLog wraps the optional logger. All methods are safe to call with a
// nil logger, in which case they do nothing.
type registryLog struct {
	logger *logiface.Logger[logiface.Event]
	// limiter rate limits backend failure logs, nil disables limiting
	limiter *catrate.Limiter
}

// failureCategory is the rate limiting category for backend failure logs.
type failureCategory struct {
	op    string
	queue QueueID
}

func newRegistryLog(logger *logiface.Logger[logiface.Event], rates map[time.Duration]int) (log registryLog, err error) {
	log.logger = logger
	if logger == nil || len(rates) == 0 {
		return
	}
	// catrate panics on invalid rates
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: error log rates: %v", ErrInvalidArgument, r)
		}
	}()
	log.limiter = catrate.NewLimiter(rates)
	return
}

func (x registryLog) queueCreated(q *queue) {
	x.logger.Debug().
		Int("queue", int(q.id)).
		Uint64("generation", q.gen).
		Stringer("backend", q.drv.backend()).
		Log("ioqueue: queue created")
}

func (x registryLog) queueDestroyed(id QueueID, registrations int) {
	x.logger.Debug().
		Int("queue", int(id)).
		Int("registrations", registrations).
		Log("ioqueue: queue destroyed")
}

func (x registryLog) registration(op string, id QueueID, fd int, kind Kind) {
	x.logger.Trace().
		Int("queue", int(id)).
		Int("fd", fd).
		Stringer("kind", kind).
		Log("ioqueue: " + op)
}

func (x registryLog) removed(id QueueID, fd int, n int) {
	x.logger.Trace().
		Int("queue", int(id)).
		Int("fd", fd).
		Int("removed", n).
		Log("ioqueue: remove")
}

func (x registryLog) waited(id QueueID, events int, dropped int) {
	x.logger.Trace().
		Int("queue", int(id)).
		Int("events", events).
		Int("dropped", dropped).
		Log("ioqueue: wait")
}

// backendFailure logs err at error level, subject to the rate limit for
// (queue, op).
func (x registryLog) backendFailure(id QueueID, fd int, op string, err error) {
	b := x.logger.Err()
	if b == nil {
		return
	}
	next, ok := x.limiter.Allow(failureCategory{op: op, queue: id})
	if !ok {
		b.Release()
		return
	}
	if !next.IsZero() {
		b = b.Time("suppressed_until", next)
	}
	b.Int("queue", int(id)).
		Int("fd", fd).
		Str("op", op).
		Err(err).
		Log("ioqueue: backend failure")
}
