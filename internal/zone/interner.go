/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * NameInterner / NameTable: canonical, reference-counted owner-name
 * storage shared across a zone's RRsets. Grounded in the teacher's
 * pattern of a single shared lookup structure per zone (structs.go's
 * ZoneData.OwnerIndex, a cmap.ConcurrentMap[string,int]) generalized
 * to hold the Name payload itself plus a stable identifier, per spec §3.
 */

package zone

import (
	"sync"
	"sync/atomic"
)

// InternedName is a Name that has been assigned a stable 32-bit identifier
// by a NameInterner and is reference-counted across the RRsets/Nodes that
// embed it.
type InternedName struct {
	Name
	id       uint32
	refCount int32
}

// ID returns the stable identifier assigned at intern time.
func (in *InternedName) ID() uint32 { return in.id }

func (in *InternedName) retain() { atomic.AddInt32(&in.refCount, 1) }

// release decrements the refcount and reports whether it reached zero.
func (in *InternedName) release() bool {
	return atomic.AddInt32(&in.refCount, -1) == 0
}

// NameInterner is the zone-wide canonical store of owner names. It is
// shared (by pointer) across all generations of a zone's ZoneContents that
// still reference the name; entries are garbage collected, in effect, once
// no InternedName.refCount holder exists and no NameTable has a reference
// --- in this Go rendering we let the Go GC reclaim InternedName values
// once dropped from every NameTable, and use refCount only to answer
// "how many places still use this name" for diagnostics and for the
// add-or-dedupe contract, rather than to drive manual freeing (spec §9:
// "Readers-writers coordination is expressed as copy-on-write snapshots +
// atomic pointer publication, not as an RCU library call" — the same
// substitution applies here to refcounting).
type NameInterner struct {
	mu     sync.RWMutex
	byKey  map[string]*InternedName
	nextID uint32
}

// NewNameInterner creates an empty interner.
func NewNameInterner() *NameInterner {
	return &NameInterner{byKey: make(map[string]*InternedName)}
}

// Intern returns the canonical InternedName for n, creating and assigning
// a new identifier if this is the first time n has been seen. The returned
// value's refcount is bumped by one on every call (retain semantics); the
// caller that is done with the reference should not explicitly decrement
// it — ownership is tracked by NameTable.Add/Remove instead.
func (ni *NameInterner) Intern(n Name) *InternedName {
	k := string(n.Key())

	ni.mu.RLock()
	if existing, ok := ni.byKey[k]; ok {
		existing.retain()
		ni.mu.RUnlock()
		return existing
	}
	ni.mu.RUnlock()

	ni.mu.Lock()
	defer ni.mu.Unlock()
	if existing, ok := ni.byKey[k]; ok {
		existing.retain()
		return existing
	}
	ni.nextID++
	in := &InternedName{Name: n, id: ni.nextID, refCount: 1}
	ni.byKey[k] = in
	return in
}

// Count returns the number of distinct names currently interned.
func (ni *NameInterner) Count() int {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	return len(ni.byKey)
}

// NameTable is a zone's view into the shared NameInterner: a mapping from
// Name to InternedName, holding shared ownership of each entry it
// references. Per spec §3/§4.2, NameTable supports add-or-dedupe and a
// shallow copy that shares the interned names but gets a new table root
// (used when building a copy-on-write ZoneContents).
type NameTable struct {
	interner *NameInterner
	byKey    map[string]*InternedName
}

// NewNameTable creates a table backed by the given interner (or a fresh
// private one if nil).
func NewNameTable(interner *NameInterner) *NameTable {
	if interner == nil {
		interner = NewNameInterner()
	}
	return &NameTable{interner: interner, byKey: make(map[string]*InternedName)}
}

// AddOrDedupe interns n against the shared interner and records it in this
// table, returning the InternedName (possibly already present).
func (nt *NameTable) AddOrDedupe(n Name) *InternedName {
	k := string(n.Key())
	if existing, ok := nt.byKey[k]; ok {
		return existing
	}
	in := nt.interner.Intern(n)
	nt.byKey[k] = in
	return in
}

// Lookup returns the InternedName for n if this table has already
// interned it.
func (nt *NameTable) Lookup(n Name) (*InternedName, bool) {
	in, ok := nt.byKey[string(n.Key())]
	return in, ok
}

// Remove drops n from this table's bookkeeping and releases the shared
// reference; the InternedName itself stays resident in the interner until
// every table referencing it has dropped it (we rely on Go's GC for the
// underlying struct, the refcount here is purely advisory/diagnostic).
func (nt *NameTable) Remove(n Name) {
	k := string(n.Key())
	if in, ok := nt.byKey[k]; ok {
		in.release()
		delete(nt.byKey, k)
	}
}

// ShallowCopy duplicates the table's index (a new map) while sharing the
// same InternedName pointers, per spec §4.1's shallow_copy contract. Each
// shared entry's refcount is bumped to reflect the new table's hold on it.
func (nt *NameTable) ShallowCopy() *NameTable {
	cp := &NameTable{interner: nt.interner, byKey: make(map[string]*InternedName, len(nt.byKey))}
	for k, v := range nt.byKey {
		v.retain()
		cp.byKey[k] = v
	}
	return cp
}

// Len reports how many names this table currently references.
func (nt *NameTable) Len() int { return len(nt.byKey) }
