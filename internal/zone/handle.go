/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * ZoneHandle: the reference-counted envelope around a ZoneContents
 * snapshot that lets readers and the XFR loader coexist without stalling
 * each other, per spec §3/§4.2/§5. Grounded in the teacher's top-level
 * Zones registry (global.go: cmap.ConcurrentMap[string,*ZoneData]) but
 * split so that each entry owns its own atomic-publish point instead of
 * the teacher's in-place field mutation under zd.mu — the spec explicitly
 * calls for copy-on-write generations so queries never stall on a
 * publish, which the teacher's design (direct field writes guarded by a
 * single mutex) does not provide.
 */

package zone

import "sync/atomic"

// ZoneHandle is a stable, named reference to a zone whose contents may be
// atomically swapped out from under in-flight readers. Per spec §5, a
// reader acquires a reference with no lock (Load), reads freely, and lets
// Go's garbage collector reclaim the old generation once every reader
// holding it has dropped its local reference — the Go-idiomatic stand-in
// for the spec's manual refcounted "old generation destroyed when its
// reference count reaches zero" (see spec §9's own framing: "copy-on-write
// snapshots + atomic pointer publication, not as an RCU library call").
type ZoneHandle struct {
	Name string

	current atomic.Pointer[ZoneContents]

	// publishMu serializes concurrent publishers (e.g. a racing AXFR_IN
	// finishing while another refresh is mid-flight); spec §5: "Generation
	// swaps on a zone are serialized by the zone's own mutex."
	publishMu chan struct{}
}

// NewZoneHandle wraps an initial ZoneContents snapshot.
func NewZoneHandle(name string, initial *ZoneContents) *ZoneHandle {
	h := &ZoneHandle{Name: name, publishMu: make(chan struct{}, 1)}
	h.current.Store(initial)
	return h
}

// Load returns the current generation. The returned pointer remains valid
// and internally consistent for as long as the caller holds it, even
// across subsequent Publish calls from other goroutines.
func (h *ZoneHandle) Load() *ZoneContents {
	return h.current.Load()
}

// Publish atomically swaps in next as the new current generation. It
// serializes against concurrent publishers but never blocks a concurrent
// Load.
func (h *ZoneHandle) Publish(next *ZoneContents) {
	h.publishMu <- struct{}{}
	defer func() { <-h.publishMu }()

	prev := h.current.Load()
	if prev != nil {
		next.Generation = prev.Generation ^ 1
	}
	h.current.Store(next)
}
