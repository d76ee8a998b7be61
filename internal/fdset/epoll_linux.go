/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package fdset

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollSet is the Linux epoll-backed FDSet implementation.
type epollSet struct {
	epfd int
	watchdogs
}

// New creates the platform-preferred FDSet backend: epoll on Linux.
func New() (FDSet, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollSet{epfd: fd, watchdogs: newWatchdogs()}, nil
}

func (e *epollSet) Add(fd int, events Events) error {
	var ev unix.EpollEvent
	ev.Fd = int32(fd)
	if events&Readable != 0 {
		ev.Events = unix.EPOLLIN
	}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (e *epollSet) Remove(fd int) error {
	e.clear(fd)
	err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (e *epollSet) Wait(timeout time.Duration) ([]Ready, error) {
	events := make([]unix.EpollEvent, 64)
	ms := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(e.epfd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Ready, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Ready{Fd: int(events[i].Fd), Events: Readable})
	}
	return out, nil
}

func (e *epollSet) SetWatchdog(fd int, d time.Duration) { e.set(fd, d) }
func (e *epollSet) ClearWatchdog(fd int)                { e.clear(fd) }
func (e *epollSet) Sweep(fn func(fd int))               { e.sweep(fn) }

func (e *epollSet) Close() error {
	return unix.Close(e.epfd)
}
