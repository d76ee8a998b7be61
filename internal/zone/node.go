/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Node: per-owner container, per spec §3/§4.3. The teacher's OwnerData
 * (structs.go) is the closest analogue — (Name, RRtypes RRTypeStore) — but
 * has no parent/ring/NSEC3/flag bookkeeping since the teacher's zone is an
 * unordered map. This Node carries the neighbor pointers and flags the
 * spec requires for canonical traversal and delegation tracking.
 *
 * Back-edges (parent<->children count, prev<->next, nsec3<->referer) are
 * non-owning per spec §9: plain pointers, nulled on removal, not
 * reference-counted — a zone's Nodes all live for the lifetime of the
 * ZoneContents generation that owns them and are freed together by the Go
 * GC once that generation is dropped.
 */

package zone

import "github.com/miekg/dns"

// Flag is a bitmask of the per-node flags from spec §3.
type Flag uint8

const (
	FlagDeleg Flag = 1 << iota
	FlagNonAuth
	FlagNew
	FlagOld
)

const authMask = FlagDeleg | FlagNonAuth

// AddResult reports the outcome of Node.AddRRSet.
type AddResult uint8

const (
	Added AddResult = iota
	Merged
)

// Node is a single owner name's record container, linked into the
// zone-wide canonical ring (Prev/Next) and parent/child structure.
type Node struct {
	Owner *InternedName

	Parent *Node
	Prev   *Node
	Next   *Node

	NSEC3Node    *Node // this node's corresponding NSEC3 node, set by adjust
	NSEC3Referer *Node // reverse link, set on the NSEC3 node itself

	WildcardChild *Node

	Flags Flag

	childCount int
	rrsets     map[uint16]*RRSet

	// embedded holds, per RR, the resolved *Node for each of that RR's
	// embedded RDATA names that falls inside this zone (spec §3: "every
	// embedded name inside in-zone RDATA that resolves to a zone name
	// points at that Node"). Populated by ZoneContents.relinkEmbeddedNames
	// during Adjust; entries are parallel to embeddedNames(rr) with a nil
	// slot wherever that particular name is out of zone or unresolved.
	embedded map[dns.RR][]*Node
}

// NewNode creates a bare node for owner, with no RRsets.
func NewNode(owner *InternedName) *Node {
	return &Node{Owner: owner, rrsets: make(map[uint16]*RRSet)}
}

// AddRRSet attaches rrset to the node, merging into any existing same-type
// RRset when merge is true (MERGE dup policy), or leaving the existing one
// untouched and returning an error when it is false and a set already
// exists (REJECT dup policy matches the spec's add_rrset dup_policy).
func (n *Node) AddRRSet(rrset *RRSet, merge bool) (AddResult, error) {
	existing, ok := n.rrsets[rrset.Type]
	if !ok {
		n.rrsets[rrset.Type] = rrset
		return Added, nil
	}
	if !merge {
		return Added, newErr(Duplicate, "rrset type %s already present at %s", dns.TypeToString[rrset.Type], rrset.Owner)
	}
	existing.merge(rrset)
	return Merged, nil
}

// GetRRSet returns the RRset of the given type, if any.
func (n *Node) GetRRSet(t uint16) (*RRSet, bool) {
	rs, ok := n.rrsets[t]
	return rs, ok
}

// RemoveRRSet deletes the RRset of the given type.
func (n *Node) RemoveRRSet(t uint16) {
	delete(n.rrsets, t)
}

// RRSetsSnapshot returns a stable slice of all RRsets currently attached.
func (n *Node) RRSetsSnapshot() []*RRSet {
	out := make([]*RRSet, 0, len(n.rrsets))
	for _, rs := range n.rrsets {
		out = append(out, rs)
	}
	return out
}

// AttachRRSIGs attaches an RRSIG RRset to the RRset it covers, selected
// either explicitly (target non-nil) or by the covered-type field of the
// first RRSIG record.
func (n *Node) AttachRRSIGs(rrsigs *RRSet, target *RRSet) error {
	if target == nil {
		if len(rrsigs.RRs) == 0 {
			return newErr(InvalidArgument, "empty rrsig set, no covered type to infer")
		}
		sig, ok := rrsigs.RRs[0].(*dns.RRSIG)
		if !ok {
			return newErr(Malformed, "rrsig set contains non-RRSIG record")
		}
		t, ok := n.GetRRSet(sig.TypeCovered)
		if !ok {
			return newErr(NoNode, "no rrset of covered type %s to attach rrsig to", dns.TypeToString[sig.TypeCovered])
		}
		target = t
	}
	if target.RRSIGs == nil {
		target.RRSIGs = rrsigs
	} else {
		target.RRSIGs.merge(rrsigs)
	}
	return nil
}

// SetParent sets n's parent, maintaining an accurate child count on both
// the old and new parent. Spec §9 design note (iii) flags the teacher's
// knot_node_set_parent as decrementing the *new* parent's counter by
// mistake; the correct formulation — decrement old, increment new — is
// applied here.
func (n *Node) SetParent(p *Node) {
	if n.Parent != nil {
		n.Parent.childCount--
	}
	n.Parent = p
	if p != nil {
		p.childCount++
	}
}

// ChildCount returns the number of nodes whose Parent is n.
func (n *Node) ChildCount() int { return n.childCount }

// SetPrevious splices n into the canonical ring immediately after prev:
// prev.Next becomes n, and the node that used to be prev.Next gets its
// Prev pointer updated to n.
func (n *Node) SetPrevious(prev *Node) {
	if prev == nil {
		return
	}
	oldNext := prev.Next
	prev.Next = n
	n.Prev = prev
	n.Next = oldNext
	if oldNext != nil {
		oldNext.Prev = n
	}
}

// SetNSEC3 links n to its NSEC3 counterpart and sets the NSEC3 node's
// back-reference.
func (n *Node) SetNSEC3(n3 *Node) {
	n.NSEC3Node = n3
	if n3 != nil {
		n3.NSEC3Referer = n
	}
}

// IsAuth reports whether n is authoritative: neither a delegation point
// nor below one. Spec §9 design note (iv): the teacher's knot_node_is_auth
// tests the *entire* flags byte for zero, which silently breaks once the
// NEW/OLD bookkeeping bits are set; the correct test masks only
// DELEG|NON_AUTH.
func (n *Node) IsAuth() bool {
	return n.Flags&authMask == 0
}

// IsDelegationPoint reports whether n carries an NS RRset that makes it a
// (non-apex) delegation point.
func (n *Node) IsDelegationPoint() bool {
	return n.Flags&FlagDeleg != 0
}

// SetEmbeddedTargets records the resolved in-zone *Node for each of rr's
// embedded RDATA names (see embeddedNames in contents.go), in the same
// order. A nil slot means that particular name does not resolve to a node
// in this zone. Passing a nil or all-nil targets clears the entry.
func (n *Node) SetEmbeddedTargets(rr dns.RR, targets []*Node) {
	allNil := true
	for _, t := range targets {
		if t != nil {
			allNil = false
			break
		}
	}
	if allNil {
		delete(n.embedded, rr)
		return
	}
	if n.embedded == nil {
		n.embedded = make(map[dns.RR][]*Node)
	}
	n.embedded[rr] = targets
}

// EmbeddedTargets returns the resolved in-zone *Node slice previously
// recorded for rr via SetEmbeddedTargets, or nil if rr carries no embedded
// names that resolve inside this zone.
func (n *Node) EmbeddedTargets(rr dns.RR) []*Node {
	return n.embedded[rr]
}
