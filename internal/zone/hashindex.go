/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * HashIndex: optional O(1) exact-match accelerator for the query fast
 * path, sitting alongside the canonical NameTree (spec §4 HashIndex row).
 * Grounded in the teacher's OwnerIndex (structs.go: cmap.ConcurrentMap
 * [string,int]) which serves the same "skip the ordered structure for
 * plain lookups" purpose; reworked as a plain map guarded by the owning
 * ZoneContents since it is only ever written during a single-writer load.
 */

package zone

// HashIndex accelerates exact-owner-name lookup without walking the
// canonical tree. It is built from the NameTree by
// ZoneContents.BuildHashIndex and is not updated by later inserts or
// removals; it is safe to share read-only across readers of a published
// ZoneContents generation.
type HashIndex struct {
	byKey map[string]*Node
}

// NewHashIndex creates an empty index.
func NewHashIndex() *HashIndex {
	return &HashIndex{byKey: make(map[string]*Node)}
}

// Put records node under name's canonical key.
func (h *HashIndex) Put(name Name, node *Node) {
	h.byKey[string(name.Key())] = node
}

// Get performs the O(1) exact lookup.
func (h *HashIndex) Get(name Name) (*Node, bool) {
	n, ok := h.byKey[string(name.Key())]
	return n, ok
}

// Delete removes name's entry, if any.
func (h *HashIndex) Delete(name Name) {
	delete(h.byKey, string(name.Key()))
}

// Len reports the number of indexed names.
func (h *HashIndex) Len() int { return len(h.byKey) }

// ShallowCopy duplicates the map while sharing *Node pointers, mirroring
// NameTree.ShallowCopy for copy-on-write zone generations.
func (h *HashIndex) ShallowCopy() *HashIndex {
	cp := NewHashIndex()
	for k, v := range h.byKey {
		cp.byKey[k] = v
	}
	return cp
}
