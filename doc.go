// Package ioqueue provides readiness-notification queues over file
// descriptors: register interest in a descriptor becoming readable or
// writable, wait for any registered descriptor to become ready, then
// retrieve the value associated with each ready (descriptor, kind) pair.
//
// # Architecture
//
// A [Registry] owns a bounded table of queues, each identified by a small
// [QueueID]. Every queue has its own interest set, and its own instance of
// the registry's backend. Ids of destroyed queues are reused, least recently
// destroyed first, but events and ids from a previous incarnation are
// rejected with [ErrInvalidQueue].
//
// # Platform Support
//
// Readiness is detected using platform-native mechanisms, see [Backend]:
//   - Linux: epoll (default), or select
//   - macOS and the BSDs: kqueue (default), or select
//
// All backends are level-triggered. On any other platform, [NewRegistry]
// fails with [ErrUnsupported].
//
// # Thread Safety
//
// All [Registry] methods are safe to call from any goroutine:
//   - Operations on a queue are serialized by a per-queue lock
//   - [Registry.Wait] blocks without holding that lock, so [Registry.Add],
//     [Registry.Remove], [Registry.Wake] and [Registry.Destroy] may be
//     called while a wait is in flight
//   - Descriptors removed during a wait never appear in its results
//   - The select backend waits on a snapshot of the interest set, taken when
//     the wait began, so registrations added during the wait are only
//     observed by the next one
//
// The registry never opens, closes, or inspects descriptors, nor the data
// values associated with them. Descriptors must be removed before they are
// closed, else backends may report them until they are.
//
// # Usage
//
//	reg, err := ioqueue.NewRegistry(ioqueue.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer reg.Close()
//
//	q, err := reg.Create()
//	if err != nil {
//		return err
//	}
//	if err := reg.Add(q, fd, ioqueue.Readable, true, conn); err != nil {
//		return err
//	}
//
//	events, err := reg.Wait(q, 64, ioqueue.Forever)
//	if err != nil {
//		return err
//	}
//	for _, ev := range events {
//		data, err := reg.Resolve(ev)
//		if err != nil {
//			continue // removed concurrently
//		}
//		handle(data.(*Conn), ev)
//	}
package ioqueue
