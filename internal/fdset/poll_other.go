//go:build !linux && !darwin

/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Portable fallback FDSet backend for platforms without epoll or kqueue,
 * built on golang.org/x/sys/unix's poll(2) wrapper. Slower than the native
 * backends for large fd counts (O(n) scan per Wait) but correct, and keeps
 * the FDSet contract satisfiable on every Go-supported unix target per
 * spec §4.7's "three readiness backends" framing.
 */

package fdset

import (
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

type pollSet struct {
	fds map[int]Events
	watchdogs
}

// New creates the portable poll(2)-backed FDSet backend.
func New() (FDSet, error) {
	return &pollSet{fds: make(map[int]Events), watchdogs: newWatchdogs()}, nil
}

func (p *pollSet) Add(fd int, events Events) error {
	p.fds[fd] = events
	return nil
}

func (p *pollSet) Remove(fd int) error {
	p.clear(fd)
	delete(p.fds, fd)
	return nil
}

func (p *pollSet) Wait(timeout time.Duration) ([]Ready, error) {
	if len(p.fds) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}

	ordered := make([]int, 0, len(p.fds))
	for fd := range p.fds {
		ordered = append(ordered, fd)
	}
	sort.Ints(ordered)

	fds := make([]unix.PollFd, len(ordered))
	for i, fd := range ordered {
		fds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}

	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Ready, 0, n)
	for _, pfd := range fds {
		if pfd.Revents&unix.POLLIN != 0 {
			out = append(out, Ready{Fd: int(pfd.Fd), Events: Readable})
		}
	}
	return out, nil
}

func (p *pollSet) SetWatchdog(fd int, d time.Duration) { p.set(fd, d) }
func (p *pollSet) ClearWatchdog(fd int)                { p.clear(fd) }
func (p *pollSet) Sweep(fn func(fd int))               { p.sweep(fn) }

func (p *pollSet) Close() error { return nil }
