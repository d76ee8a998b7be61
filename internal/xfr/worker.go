/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * XFRWorker: per spec §4.5's event loop. Grounded in the teacher's
 * RefreshEngine loop shape (refreshengine.go: a single goroutine draining
 * a channel of zone-refresh requests and dispatching) generalized from a
 * channel of zone names to a FIFO task queue plus an FDSet-driven
 * readiness loop, since this core must multiplex many concurrent raw
 * sockets in one goroutine rather than spawn one per zone.
 */

package xfr

import (
	"log"
	"time"

	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/fdset"
)

const (
	chunkLen      = 16
	sweepInterval = 2 * time.Second
)

// Worker drains tasks from a shared queue and drives them to completion
// using its own FDSet, per spec §5: "each worker runs an independent event
// loop with its own FDSet, its own task map keyed by fd, and its own
// pending counter."
type Worker struct {
	id       int
	capacity int

	queue *fifoQueue

	fds     fdset.FDSet
	byFD    map[int]*Task
	conns   map[int]*rawConn
	pending int

	cancel chan struct{}
	log    *log.Logger
}

// NewWorker creates a worker with the given per-worker connection
// capacity (spec §4.5: `max(1, configured_xfers / worker_count)`).
func NewWorker(id, capacity int, queue *fifoQueue, logger *log.Logger) (*Worker, error) {
	fs, err := fdset.New()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		id:       id,
		capacity: capacity,
		queue:    queue,
		fds:      fs,
		byFD:     make(map[int]*Task),
		conns:    make(map[int]*rawConn),
		cancel:   make(chan struct{}),
		log:      logger,
	}, nil
}

// Stop requests the worker's Run loop to exit once current tasks drain.
func (w *Worker) Stop() { close(w.cancel) }

// Run is the worker's event loop, per spec §4.5's four-step loop body.
// It returns once cancelled with no pending tasks.
func (w *Worker) Run() {
	for {
		select {
		case <-w.cancel:
			if w.pending == 0 {
				w.fds.Close()
				return
			}
		default:
		}

		for w.pending < w.capacity {
			t, ok := w.queue.tryDequeue()
			if !ok {
				break
			}
			w.start(t)
		}

		ready, err := w.fds.Wait(sweepInterval / 2)
		if err != nil {
			w.log.Printf("xfr worker %d: fdset wait error: %v", w.id, err)
			continue
		}
		for _, r := range ready {
			w.onReadable(r.Fd)
		}

		w.fds.Sweep(w.onWatchdog)
	}
}

func (w *Worker) start(t *Task) {
	t.State = Connecting

	dial := dialRaw
	if !t.Kind.isTCP() {
		dial = dialRawUDP
	}

	rc, err := dial(t.Peer)
	if err != nil {
		t.fail(err)
		return
	}
	if err := w.fds.Add(rc.fd, fdset.Readable); err != nil {
		rc.Close()
		t.fail(err)
		return
	}
	t.fd = rc.fd
	w.byFD[rc.fd] = t
	w.conns[rc.fd] = rc
	w.pending++

	t.State = Running
	w.fds.SetWatchdog(rc.fd, t.Watchdog)

	if err := sendInitialQuery(t, rc); err != nil {
		w.finishFD(rc.fd, err)
	}
}

func (w *Worker) onReadable(fd int) {
	t, ok := w.byFD[fd]
	if !ok {
		return
	}
	rc := w.conns[fd]
	msgs, closed, err := rc.pump()
	if err != nil {
		w.finishFD(fd, err)
		return
	}
	for _, m := range msgs {
		parsed := new(dns.Msg)
		if uerr := parsed.Unpack(m); uerr != nil {
			w.finishFD(fd, uerr)
			return
		}
		done, terr := advance(t, m, parsed, rc)
		if terr != nil {
			if ixfrFallbackErr(t, terr) {
				w.restartAsAxfr(fd, t, rc)
				return
			}
			w.finishFD(fd, terr)
			return
		}
		if done {
			w.finishFD(fd, nil)
			return
		}
		w.fds.SetWatchdog(fd, t.Watchdog)
	}
	if closed && t.State != Done && t.State != Failed {
		w.finishFD(fd, errConnClosed)
	}
}

func (w *Worker) finishFD(fd int, err error) {
	t, ok := w.byFD[fd]
	if !ok {
		return
	}
	if rc, ok := w.conns[fd]; ok {
		w.fds.Remove(fd)
		rc.Close()
		delete(w.conns, fd)
	}
	delete(w.byFD, fd)
	w.pending--

	if err != nil {
		t.fail(err)
		return
	}
	t.finish()
}

// restartAsAxfr silently restarts t as an AXFR_IN task on the same
// connection it was already running on, per spec §4.4/§6's IXFR_IN ->
// AXFR_IN fallback: the fd stays registered with the fdset and in w's
// task maps, so no new socket is dialed and the worker's pending count is
// untouched.
func (w *Worker) restartAsAxfr(fd int, t *Task, rc *rawConn) {
	resetForAxfrFallback(t)
	w.fds.SetWatchdog(fd, t.Watchdog)
	if err := sendInitialQuery(t, rc); err != nil {
		w.finishFD(fd, err)
	}
}

func (w *Worker) onWatchdog(fd int) {
	t, ok := w.byFD[fd]
	if !ok {
		return
	}
	if t.Kind == Notify && t.Attempt < t.MaxRetries {
		t.Attempt++
		w.fds.SetWatchdog(fd, t.Watchdog)
		if rc, ok := w.conns[fd]; ok {
			_ = sendInitialQuery(t, rc)
		}
		return
	}
	w.finishFD(fd, errTimeout)
}
