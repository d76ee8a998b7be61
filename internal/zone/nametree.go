/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * NameTree: the ordered owner-name -> *Node index, per spec §4.1. The
 * teacher keeps owner data in an unordered concurrent-map
 * (structs.go: ZoneData.Data cmap.ConcurrentMap[string,OwnerData]) which
 * cannot answer closest-encloser/NSEC3 predecessor queries; this type
 * replaces that with a canonically-ordered index while keeping the
 * "dedupe on insert, cheap shallow copy for copy-on-write" shape the
 * teacher's zone-swap code relies on.
 *
 * Implemented as a sorted slice searched with sort.Search: simpler to
 * reason about for canonical-order correctness than a self-balancing tree,
 * and a zone's node count (thousands, not billions) makes the O(n) insert
 * and O(n) shallow_copy acceptable for this exercise. See DESIGN.md for
 * the tradeoff note.
 */

package zone

import "sort"

type treeEntry struct {
	key  []byte
	node *Node
}

// NameTree is a canonical-DNS-order keyed map from owner name to *Node.
type NameTree struct {
	entries []treeEntry
}

// NewNameTree creates an empty tree.
func NewNameTree() *NameTree { return &NameTree{} }

func (t *NameTree) search(key []byte) (idx int, found bool) {
	n := len(t.entries)
	i := sort.Search(n, func(i int) bool {
		return compareKeys(t.entries[i].key, key) >= 0
	})
	if i < n && compareKeys(t.entries[i].key, key) == 0 {
		return i, true
	}
	return i, false
}

// Insert places node under name's key, failing with Duplicate if present.
func (t *NameTree) Insert(name Name, node *Node) error {
	idx, found := t.search(name.Key())
	if found {
		return newErr(Duplicate, "name %s already present in tree", name)
	}
	t.entries = append(t.entries, treeEntry{})
	copy(t.entries[idx+1:], t.entries[idx:])
	t.entries[idx] = treeEntry{key: name.Key(), node: node}
	return nil
}

// Get returns the node whose owner exactly matches name.
func (t *NameTree) Get(name Name) (*Node, bool) {
	idx, found := t.search(name.Key())
	if !found {
		return nil, false
	}
	return t.entries[idx].node, true
}

// LessOrEqual implements the spec §4.1 predecessor search: if name is
// present, match=true and found is its node. Otherwise match=false and
// prev is the greatest strictly-less-than entry; if name precedes every
// entry, prev wraps around to the tree's largest node (supporting DNSSEC
// closest-encloser proofs at the start of the canonical ring).
func (t *NameTree) LessOrEqual(name Name) (match bool, found *Node, prev *Node) {
	if len(t.entries) == 0 {
		return false, nil, nil
	}
	idx, exact := t.search(name.Key())
	if exact {
		return true, t.entries[idx].node, nil
	}
	if idx == 0 {
		// name precedes all entries: wrap around to the largest.
		return false, nil, t.entries[len(t.entries)-1].node
	}
	return false, nil, t.entries[idx-1].node
}

// Remove evicts name's entry, returning the removed node if present.
func (t *NameTree) Remove(name Name) (*Node, bool) {
	idx, found := t.search(name.Key())
	if !found {
		return nil, false
	}
	n := t.entries[idx].node
	t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
	return n, true
}

// Len reports the number of entries.
func (t *NameTree) Len() int { return len(t.entries) }

// ApplyInorder calls fn for every node in ascending canonical order,
// stopping early if fn returns false.
func (t *NameTree) ApplyInorder(fn func(n *Node) bool) {
	for _, e := range t.entries {
		if !fn(e.node) {
			return
		}
	}
}

// ApplyReverse calls fn for every node in descending canonical order,
// stopping early if fn returns false.
func (t *NameTree) ApplyReverse(fn func(n *Node) bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if !fn(t.entries[i].node) {
			return
		}
	}
}

// ShallowCopy duplicates the index (a new backing slice) while sharing
// *Node references with the original tree, as required for copy-on-write
// zone generations (spec §4.2 shallow_copy).
func (t *NameTree) ShallowCopy() *NameTree {
	cp := &NameTree{entries: make([]treeEntry, len(t.entries))}
	copy(cp.entries, t.entries)
	return cp
}
