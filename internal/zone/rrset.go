/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * RRSet, grounded in the teacher's structs.go RRset (Name, RRtype, RRs,
 * RRSIGs) but with the RRSIG slice promoted to its own attachable RRSet
 * per spec §3 ("optional rrsig_rrset") and a Merge that follows the
 * teacher's SprintUpdates/zone_updater.go notion of ADD vs REPLACE by
 * dns class, adapted to RRset-level MERGE/REJECT duplicate policy.
 */

package zone

import "github.com/miekg/dns"

// DupPolicy controls how AddRRSet handles an existing RRset of the same
// type at the same owner.
type DupPolicy uint8

const (
	Merge DupPolicy = iota
	Reject
)

// RRSet is the owner/type/class/ttl/rdata tuple from spec §3, with an
// optional attached RRSIG rrset for DNSSEC-aware serving.
type RRSet struct {
	Owner  string
	Type   uint16
	Class  uint16
	TTL    uint32
	RRs    []dns.RR
	RRSIGs *RRSet
}

// NewRRSet builds an RRset from a non-empty, same-owner/type/class slice
// of RRs, taking the TTL from the first record; the TTLs of the other
// records are not coalesced here (RFC 2181).
func NewRRSet(rrs []dns.RR) (*RRSet, error) {
	if len(rrs) == 0 {
		return nil, newErr(InvalidArgument, "empty rrset")
	}
	h := rrs[0].Header()
	rs := &RRSet{
		Owner: h.Name,
		Type:  h.Rrtype,
		Class: h.Class,
		TTL:   h.Ttl,
		RRs:   append([]dns.RR(nil), rrs...),
	}
	return rs, nil
}

// merge appends other's RRs, deduplicating by presentation string, and
// keeps the lower of the two TTLs (RFC 2181 §5.2).
func (rs *RRSet) merge(other *RRSet) {
	seen := make(map[string]bool, len(rs.RRs))
	for _, rr := range rs.RRs {
		seen[rr.String()] = true
	}
	for _, rr := range other.RRs {
		if !seen[rr.String()] {
			rs.RRs = append(rs.RRs, rr)
			seen[rr.String()] = true
		}
	}
	if other.TTL < rs.TTL {
		rs.TTL = other.TTL
	}
}
