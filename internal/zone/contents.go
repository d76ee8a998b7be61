/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * ZoneContents: the coherent, single-generation snapshot of a zone's data,
 * per spec §3/§4.2. Grounded in the teacher's ZoneData (structs.go) for
 * field shape (apex, owners, name table, NSEC3PARAM) but restructured
 * around the ordered NameTree instead of a concurrent unordered map, since
 * this is exactly the piece the spec calls out as the hard part: canonical
 * search with closest-encloser semantics (spec §1).
 *
 * Mutating operations are only ever called by the single owning loader
 * (AXFR/IXFR apply) before the contents is published via
 * a ZoneHandle; concurrent readers only ever see a fully-adjusted,
 * immutable ZoneContents. This matches spec §5 ("within a zone-load
 * operation the table is mutated only by the owning loader").
 */

package zone

import (
	"github.com/miekg/dns"
)

// FindKind is the outcome discriminant for FindDname.
type FindKind uint8

const (
	Found FindKind = iota
	Encloser
	NotInZone
)

// FindResult is the result of a FindDname closest-encloser search.
type FindResult struct {
	Kind     FindKind
	Node     *Node // valid when Kind == Found or Kind == Encloser
	Previous *Node // valid when Kind == Encloser: canonical predecessor of the queried name
}

// AddNodeOptions controls ZoneContents.AddNode.
type AddNodeOptions struct {
	CreateParents bool
	UseNameTable  bool
}

// ZoneContents is a single, internally-consistent generation of a zone's
// data. See spec §3 for the invariants it must uphold once adjusted.
type ZoneContents struct {
	apexName Name
	Apex     *Node

	Nodes  *NameTree
	NSEC3  *NameTree
	Names  *NameTable
	Hash   *HashIndex // optional; nil until BuildHashIndex is called

	NSEC3Param    *NSEC3PARAM
	NodeCount     int
	Generation    uint8 // 0 or 1, flipped by SwitchGeneration
	adjusted      bool
}

// NewZoneContents creates an empty zone with just an apex node, per spec
// §4.2's `new(apex_name)`.
func NewZoneContents(apexName string) (*ZoneContents, error) {
	apex, err := nameFromString(apexName)
	if err != nil {
		return nil, err
	}
	names := NewNameTable(nil)
	apexInterned := names.AddOrDedupe(apex)
	apexNode := NewNode(apexInterned)

	nodes := NewNameTree()
	if err := nodes.Insert(apex, apexNode); err != nil {
		return nil, err
	}

	return &ZoneContents{
		apexName:  apex,
		Apex:      apexNode,
		Nodes:     nodes,
		NSEC3:     NewNameTree(),
		Names:     names,
		NodeCount: 1,
	}, nil
}

// ApexName returns the zone's origin.
func (zc *ZoneContents) ApexName() Name { return zc.apexName }

// AddNode inserts node, failing OutOfZone if its owner is not a subdomain
// of (or equal to) the apex, and Duplicate if the owner is already
// present. When opts.CreateParents is set, any missing ancestor nodes up
// to the apex are synthesized and chained via Node.SetParent; nodes
// synthesized after Adjust has already run are flagged New. A "*" leftmost
// label records the child under its parent's WildcardChild.
func (zc *ZoneContents) AddNode(owner Name, node *Node, opts AddNodeOptions) error {
	if !owner.IsSubdomainOf(zc.apexName) {
		return newErr(OutOfZone, "name %s is not a subdomain of apex %s", owner, zc.apexName)
	}

	if opts.UseNameTable {
		zc.internRRsets(node)
	}

	if err := zc.Nodes.Insert(owner, node); err != nil {
		return err
	}
	zc.NodeCount++

	if opts.CreateParents {
		zc.chainParents(owner, node)
	}

	if zc.Hash != nil {
		zc.Hash.Put(owner, node)
	}
	return nil
}

// chainParents walks up from owner's node synthesizing any missing
// ancestors up to the apex, per spec §4.2's parent-creation algorithm.
func (zc *ZoneContents) chainParents(owner Name, node *Node) {
	cur := node
	curName := owner
	for {
		if curName.Equal(zc.apexName) {
			return
		}
		parentName, ok := curName.Parent()
		if !ok {
			return
		}
		parentNode, exists := zc.Nodes.Get(parentName)
		if !exists {
			interned := zc.Names.AddOrDedupe(parentName)
			parentNode = NewNode(interned)
			if zc.adjusted {
				parentNode.Flags |= FlagNew
			}
			_ = zc.Nodes.Insert(parentName, parentNode)
			zc.NodeCount++
			if zc.Hash != nil {
				zc.Hash.Put(parentName, parentNode)
			}
		}
		cur.SetParent(parentNode)
		if curName.IsWildcard() {
			parentNode.WildcardChild = cur
		}
		if exists {
			return // the rest of the chain already exists
		}
		cur = parentNode
		curName = parentName
	}
}

// internRRsets interns the node's owner and every embedded dname inside
// its RRsets' rdata into the zone's NameTable, per AddNode's
// use_name_table option. The intra-zone pointer replacement itself
// happens during Adjust, once the whole tree is present (spec design note
// ii: re-derived from the teacher's "_dnames_from_rdata_to_table" naming,
// since the function it names in the original is unreachable dead code).
func (zc *ZoneContents) internRRsets(node *Node) {
	for _, rs := range node.RRSetsSnapshot() {
		for _, rr := range rs.RRs {
			for _, dname := range embeddedNames(rr) {
				n, err := nameFromString(dname)
				if err != nil {
					continue
				}
				zc.Names.AddOrDedupe(n)
			}
		}
	}
}

// embeddedNames extracts every dname-valued rdata field from rr: NS/CNAME/
// PTR/MX/SRV targets and similar, matching the spec's "rdata items may
// contain embedded Names" language (§3).
func embeddedNames(rr dns.RR) []string {
	switch r := rr.(type) {
	case *dns.NS:
		return []string{r.Ns}
	case *dns.CNAME:
		return []string{r.Target}
	case *dns.DNAME:
		return []string{r.Target}
	case *dns.PTR:
		return []string{r.Ptr}
	case *dns.MX:
		return []string{r.Mx}
	case *dns.SRV:
		return []string{r.Target}
	case *dns.SOA:
		return []string{r.Ns, r.Mbox}
	case *dns.NAPTR:
		return []string{r.Replacement}
	case *dns.RRSIG:
		return []string{r.SignerName}
	default:
		return nil
	}
}

// AddRRSet attaches rrset to the node owning rrset.Owner, looking it up
// if node is nil, per spec §4.2's add_rrset contract.
func (zc *ZoneContents) AddRRSet(rrset *RRSet, node *Node, dup DupPolicy) error {
	if node == nil {
		ownerName, err := nameFromString(rrset.Owner)
		if err != nil {
			return newErr(Malformed, "bad owner name %q: %v", rrset.Owner, err)
		}
		if !ownerName.IsSubdomainOf(zc.apexName) {
			return newErr(OutOfZone, "rrset owner %s is not a subdomain of apex %s", rrset.Owner, zc.apexName)
		}
		n, ok := zc.Nodes.Get(ownerName)
		if !ok {
			return newErr(NoNode, "no node for owner %s", rrset.Owner)
		}
		node = n
	}
	if rrset.Type == dns.TypeNS && !node.Owner.Equal(zc.apexName) {
		node.Flags |= FlagDeleg
	}
	_, err := node.AddRRSet(rrset, dup == Merge)
	return err
}

// AddRRSIGs attaches rrsigs to targetRRset (or the rrset matching the
// first RRSIG's covered type, at node or the node looked up from
// rrsigs.Owner), per spec §4.2's add_rrsigs contract.
func (zc *ZoneContents) AddRRSIGs(rrsigs *RRSet, targetRRset *RRSet, node *Node) error {
	if node == nil {
		ownerName, err := nameFromString(rrsigs.Owner)
		if err != nil {
			return newErr(Malformed, "bad owner name %q: %v", rrsigs.Owner, err)
		}
		if !ownerName.IsSubdomainOf(zc.apexName) {
			return newErr(OutOfZone, "rrsig owner %s is not a subdomain of apex %s", rrsigs.Owner, zc.apexName)
		}
		n, ok := zc.Nodes.Get(ownerName)
		if !ok {
			return newErr(NoNode, "no node for owner %s", rrsigs.Owner)
		}
		node = n
	}
	return node.AttachRRSIGs(rrsigs, targetRRset)
}

// FindDname is the closest-encloser search from spec §4.2: exact match
// returns Found; a name outside the zone's namespace returns NotInZone;
// otherwise the closest existing ancestor is returned as Encloser along
// with the canonical predecessor of the queried name.
func (zc *ZoneContents) FindDname(name Name) FindResult {
	if name.Equal(zc.apexName) {
		return FindResult{Kind: Found, Node: zc.Apex}
	}
	if !name.IsSubdomainOf(zc.apexName) {
		return FindResult{Kind: NotInZone}
	}

	match, node, prev := zc.Nodes.LessOrEqual(name)
	if match {
		return FindResult{Kind: Found, Node: node}
	}

	encloser := zc.closestEncloser(name, prev)
	return FindResult{Kind: Encloser, Node: encloser, Previous: prev}
}

// closestEncloser walks parents of candidate (the canonical predecessor)
// until it finds a node whose owner's label count makes it a genuine
// ancestor of name, per spec §4.2's ordering semantics. It always
// terminates at the apex at the latest.
func (zc *ZoneContents) closestEncloser(name Name, candidate *Node) *Node {
	if candidate == nil {
		return zc.Apex
	}
	cur := candidate
	for cur != nil {
		if name.IsSubdomainOf(cur.Owner.Name) {
			return cur
		}
		if cur.Parent == nil {
			break
		}
		cur = cur.Parent
	}
	return zc.Apex
}

// FindNSEC3For computes the hashed owner for name per the zone's
// NSEC3PARAM and locates the corresponding NSEC3 node (and its
// predecessor, for denial-of-existence proofs), per spec §4.2.
func (zc *ZoneContents) FindNSEC3For(name Name) (node *Node, previous *Node, err error) {
	if zc.NSEC3Param == nil {
		return nil, nil, newErr(NoNSEC3Param, "zone %s has no NSEC3PARAM", zc.apexName)
	}
	hashed, err := HashedOwnerName(name, zc.apexName, *zc.NSEC3Param)
	if err != nil {
		return nil, nil, err
	}
	match, found, prev := zc.NSEC3.LessOrEqual(hashed)
	if match {
		return found, nil, nil
	}
	return nil, prev, nil
}

// Adjust performs the one-shot pass from spec §4.2: builds the prev/next
// ring in canonical order (apex first), sets DELEG/NON_AUTH flags,
// interns/relinks in-zone rdata names, links each regular node to its
// NSEC3 counterpart, and recomputes NodeCount. It is idempotent: calling
// it again after no further mutation produces the same structure (spec
// testable property #3).
func (zc *ZoneContents) Adjust() error {
	zc.buildRing()
	zc.markAuthFlags()
	if err := zc.relinkEmbeddedNames(); err != nil {
		return err
	}
	if err := zc.linkNSEC3(); err != nil && !isKind(err, NoNSEC3Param) {
		return err
	}
	zc.NodeCount = zc.Nodes.Len()
	zc.adjusted = true
	return nil
}

func isKind(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}

// buildRing links every regular node into a doubly-linked canonical ring,
// apex first, per spec §3's Node.prev/next invariant and testable
// property #4 (apex.next* visits every node exactly once and returns).
func (zc *ZoneContents) buildRing() {
	var all []*Node
	zc.Nodes.ApplyInorder(func(n *Node) bool {
		all = append(all, n)
		return true
	})

	// Rotate so the apex is first, preserving canonical order otherwise.
	apexIdx := -1
	for i, n := range all {
		if n == zc.Apex {
			apexIdx = i
			break
		}
	}
	if apexIdx > 0 {
		all = append(all[apexIdx:], all[:apexIdx]...)
	}

	for _, n := range all {
		n.Prev = nil
		n.Next = nil
	}
	for i, n := range all {
		next := all[(i+1)%len(all)]
		prev := all[(i-1+len(all))%len(all)]
		n.Next = next
		n.Prev = prev
	}
}

// markAuthFlags sets DELEG on non-apex nodes owning an NS RRset and
// NON_AUTH on every node at or below a delegation point other than the
// delegation point itself, per spec §3's flag invariants.
func (zc *ZoneContents) markAuthFlags() {
	zc.Nodes.ApplyInorder(func(n *Node) bool {
		n.Flags &^= FlagDeleg | FlagNonAuth
		return true
	})
	zc.Nodes.ApplyInorder(func(n *Node) bool {
		if n == zc.Apex {
			return true
		}
		if _, ok := n.GetRRSet(dns.TypeNS); ok {
			n.Flags |= FlagDeleg
		}
		return true
	})
	zc.Nodes.ApplyInorder(func(n *Node) bool {
		if n == zc.Apex || n.Flags&FlagDeleg != 0 {
			return true
		}
		p := n.Parent
		for p != nil {
			if p != zc.Apex && p.Flags&FlagDeleg != 0 {
				n.Flags |= FlagNonAuth
				break
			}
			p = p.Parent
		}
		return true
	})
}

// relinkEmbeddedNames interns every in-zone dname referenced from RDATA
// into the zone's NameTable and resolves it against the now-complete node
// tree, per spec §3's invariant: "every embedded name inside in-zone RDATA
// that resolves to a zone name points at that Node." Since miekg/dns's
// dns.RR has no field to hold a *Node in place of its string RDATA, the
// resolved pointer is recorded in a side-table keyed by the RR itself
// (Node.SetEmbeddedTargets) rather than by mutating the RR; a name that
// falls outside this zone (or has no corresponding node) simply gets no
// entry, exactly as an out-of-zone NS target keeps no glue link.
func (zc *ZoneContents) relinkEmbeddedNames() error {
	var firstErr error
	zc.Nodes.ApplyInorder(func(n *Node) bool {
		for _, rs := range n.RRSetsSnapshot() {
			for _, rr := range rs.RRs {
				names := embeddedNames(rr)
				if len(names) == 0 {
					continue
				}
				targets := make([]*Node, len(names))
				resolved := false
				for i, dname := range names {
					nm, err := nameFromString(dname)
					if err != nil {
						if firstErr == nil {
							firstErr = err
						}
						continue
					}
					zc.Names.AddOrDedupe(nm)
					if res := zc.FindDname(nm); res.Kind == Found {
						targets[i] = res.Node
						resolved = true
					}
				}
				if resolved {
					n.SetEmbeddedTargets(rr, targets)
				}
			}
		}
		return true
	})
	return firstErr
}

// linkNSEC3 links every regular authoritative node to its NSEC3 node, per
// spec §3's invariant: "If NSEC3PARAM is present and valid, every regular
// authoritative node has a link to its NSEC3 Node; otherwise that link is
// null."
func (zc *ZoneContents) linkNSEC3() error {
	if zc.NSEC3Param == nil {
		zc.Nodes.ApplyInorder(func(n *Node) bool {
			n.SetNSEC3(nil)
			return true
		})
		return newErr(NoNSEC3Param, "zone %s has no NSEC3PARAM", zc.apexName)
	}
	var firstErr error
	zc.Nodes.ApplyInorder(func(n *Node) bool {
		if !n.IsAuth() {
			n.SetNSEC3(nil)
			return true
		}
		hashed, err := HashedOwnerName(n.Owner.Name, zc.apexName, *zc.NSEC3Param)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		n3, ok := zc.NSEC3.Get(hashed)
		if !ok {
			n.SetNSEC3(nil)
			return true
		}
		n.SetNSEC3(n3)
		return true
	})
	return firstErr
}

// BuildHashIndex (re)builds the optional exact-match accelerator from the
// current NameTree contents.
func (zc *ZoneContents) BuildHashIndex() {
	h := NewHashIndex()
	zc.Nodes.ApplyInorder(func(n *Node) bool {
		h.Put(n.Owner.Name, n)
		return true
	})
	zc.Hash = h
}

// ShallowCopy duplicates the index structures (NameTree, NSEC3 tree,
// NameTable, HashIndex) while sharing *Node references, the starting
// point for applying a differential (IXFR) update, per spec §4.2.
func (zc *ZoneContents) ShallowCopy() *ZoneContents {
	cp := &ZoneContents{
		apexName:   zc.apexName,
		Apex:       zc.Apex,
		Nodes:      zc.Nodes.ShallowCopy(),
		NSEC3:      zc.NSEC3.ShallowCopy(),
		Names:      zc.Names.ShallowCopy(),
		NSEC3Param: zc.NSEC3Param,
		NodeCount:  zc.NodeCount,
		Generation: zc.Generation,
		adjusted:   zc.adjusted,
	}
	if zc.Hash != nil {
		cp.Hash = zc.Hash.ShallowCopy()
	}
	return cp
}

// SwitchGeneration flips the generation tag (0<->1), per spec §4.2.
func (zc *ZoneContents) SwitchGeneration() {
	zc.Generation ^= 1
}
