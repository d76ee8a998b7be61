/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Pool: the cross-worker FIFO plus per-zone single-inbound-transfer
 * invariant, per spec §4.5/§5. The per-zone Pending/Idle bookkeeping is
 * grounded in the teacher's refreshengine.go, which guards against
 * overlapping refreshes of the same zone with its Options[OptDirty]
 * bookkeeping; the zone-keyed map here plays the same role for the
 * worker pool's inbound-transfer admission check.
 */

package xfr

import (
	"errors"
	"log"
	"sync"
)

var (
	errConnClosed = errors.New("xfr: connection closed unexpectedly")
	errTimeout    = errors.New("xfr: watchdog timeout exceeded")
)

// InboundState is a zone's single-inbound-transfer guard, per spec §4.5.
type InboundState uint8

const (
	InboundIdle InboundState = iota
	InboundPending
)

// fifoQueue is the shared cross-worker task queue, guarded by a single
// mutex. A worker takes one task per lock acquisition (tryDequeue) until
// it reaches its capacity; the queue is not drained in chunks.
type fifoQueue struct {
	mu    sync.Mutex
	tasks []*Task
}

func newFIFOQueue() *fifoQueue { return &fifoQueue{} }

func (q *fifoQueue) enqueue(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

func (q *fifoQueue) tryDequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

// Pool is the XFR orchestrator: a fixed-size worker pool sharing one FIFO,
// per spec §4.5/§5.
type Pool struct {
	queue       *fifoQueue
	workers     []*Worker
	inboundMu   sync.Mutex
	inboundZone map[string]InboundState
	log         *log.Logger
}

// NewPool creates a pool of workerCount workers, each with capacity
// max(1, configuredXfers/workerCount), per spec §4.5.
func NewPool(workerCount, configuredXfers int, logger *log.Logger) (*Pool, error) {
	if workerCount < 1 {
		workerCount = 1
	}
	capacity := configuredXfers / workerCount
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = log.Default()
	}

	p := &Pool{
		queue:       newFIFOQueue(),
		inboundZone: make(map[string]InboundState),
		log:         logger,
	}
	for i := 0; i < workerCount; i++ {
		w, err := NewWorker(i, capacity, p.queue, logger)
		if err != nil {
			return nil, err
		}
		p.workers = append(p.workers, w)
	}
	return p, nil
}

// Start launches every worker's event loop in its own goroutine.
func (p *Pool) Start() {
	for _, w := range p.workers {
		go w.Run()
	}
}

// Stop requests every worker to drain and exit.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}

// Submit enqueues t, rejecting a second concurrent inbound transfer for
// the same zone at enqueue time, per spec §4.5's per-zone invariant.
func (p *Pool) Submit(t *Task) error {
	if t.Kind == AxfrIn || t.Kind == IxfrIn {
		p.inboundMu.Lock()
		if p.inboundZone[t.Zone] == InboundPending {
			p.inboundMu.Unlock()
			return errInboundBusy(t.Zone)
		}
		p.inboundZone[t.Zone] = InboundPending
		p.inboundMu.Unlock()

		orig := t.OnComplete
		t.OnComplete = func(done *Task) {
			p.inboundMu.Lock()
			p.inboundZone[t.Zone] = InboundIdle
			p.inboundMu.Unlock()
			if orig != nil {
				orig(done)
			}
		}
	}
	p.queue.enqueue(t)
	return nil
}

func errInboundBusy(zoneName string) error {
	return errors.New("xfr: inbound transfer already pending for zone " + zoneName)
}
