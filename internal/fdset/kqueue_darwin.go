/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package fdset

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueSet is the Darwin kqueue-backed FDSet implementation.
type kqueueSet struct {
	kq int
	watchdogs
}

// New creates the platform-preferred FDSet backend: kqueue on Darwin.
func New() (FDSet, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueSet{kq: fd, watchdogs: newWatchdogs()}, nil
}

func (k *kqueueSet) Add(fd int, events Events) error {
	if events&Readable == 0 {
		return nil
	}
	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	_, err := unix.Kevent(k.kq, changes, nil, nil)
	return err
}

func (k *kqueueSet) Remove(fd int) error {
	k.clear(fd)
	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	}}
	_, err := unix.Kevent(k.kq, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (k *kqueueSet) Wait(timeout time.Duration) ([]Ready, error) {
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	events := make([]unix.Kevent_t, 64)
	n, err := unix.Kevent(k.kq, nil, events, &ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Ready, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Ready{Fd: int(events[i].Ident), Events: Readable})
	}
	return out, nil
}

func (k *kqueueSet) SetWatchdog(fd int, d time.Duration) { k.set(fd, d) }
func (k *kqueueSet) ClearWatchdog(fd int)                { k.clear(fd) }
func (k *kqueueSet) Sweep(fn func(fd int))               { k.sweep(fn) }

func (k *kqueueSet) Close() error {
	return unix.Close(k.kq)
}
