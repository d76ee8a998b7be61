/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * FDSet: a uniform file-descriptor readiness abstraction over epoll/kqueue/
 * poll backends, per spec §4.7. The teacher's own I/O model is entirely
 * goroutine-per-connection on top of net.Listener/net.Conn and never needs
 * this kind of explicit readiness multiplexing; this package is new,
 * grounded directly in spec §4.7's operation list, with golang.org/x/sys/unix
 * (already present, transitively, in the teacher's own dependency graph)
 * backing the epoll/kqueue implementations.
 */

package fdset

import "time"

// Events is a bitmask of readiness conditions a caller is interested in.
// Only read-readiness is required by this core (spec §4.7).
type Events uint8

const (
	Readable Events = 1 << iota
)

// Ready describes one readiness notification returned from Wait.
type Ready struct {
	Fd     int
	Events Events
}

// FDSet is the uniform readiness-multiplexing contract implemented by the
// epoll, kqueue, and portable-poll backends in this package. A single
// FDSet is never shared across worker goroutines (spec §5: "FDSets are
// single-threaded").
type FDSet interface {
	// Add registers fd for the given events.
	Add(fd int, events Events) error
	// Remove deregisters fd. It is not an error to remove an fd that was
	// never added.
	Remove(fd int) error
	// Wait blocks for up to timeout for at least one ready fd, returning
	// the set of fds that became ready. A zero-length, nil-error result
	// means the timeout elapsed with nothing ready.
	Wait(timeout time.Duration) ([]Ready, error)
	// SetWatchdog records a deadline for fd, measured from now.
	SetWatchdog(fd int, d time.Duration)
	// ClearWatchdog removes fd's deadline, if any.
	ClearWatchdog(fd int)
	// Sweep invokes fn for every fd whose watchdog deadline has passed.
	Sweep(fn func(fd int))
	// Close releases backend resources (the epoll/kqueue fd, if any).
	Close() error
}

// watchdogs is the deadline-bookkeeping shared by every backend
// implementation: none of epoll/kqueue/poll natively expose a per-fd
// timeout, so each backend composes this tracker with its own readiness
// wait, per spec §4.7's set_watchdog/sweep contract.
type watchdogs struct {
	deadlines map[int]time.Time
}

func newWatchdogs() watchdogs {
	return watchdogs{deadlines: make(map[int]time.Time)}
}

func (w *watchdogs) set(fd int, d time.Duration) {
	w.deadlines[fd] = time.Now().Add(d)
}

func (w *watchdogs) clear(fd int) {
	delete(w.deadlines, fd)
}

func (w *watchdogs) sweep(fn func(fd int)) {
	now := time.Now()
	for fd, deadline := range w.deadlines {
		if now.After(deadline) {
			fn(fd)
			delete(w.deadlines, fd)
		}
	}
}
