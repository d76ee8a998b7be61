/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Query-path response construction, per spec §2's data-flow note ("query
 * path reads a consistent snapshot"). Grounded in the teacher's
 * queryresponder.go (the dispatch-by-qtype response builder) adapted to
 * this core's ZoneContents/Node model and HashIndex fast path instead of
 * the teacher's RRset_cache lookups.
 */

package server

import (
	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/zone"
)

// HandleQuery answers an ordinary (non-XFR) query against the current
// generation of whichever registered zone encloses the question name, per
// spec §4.2's FindDname contract. Returns a response message with RCODE
// set appropriately; never returns an error for a well-formed question —
// "no such zone"/"no such name" are RCODEs, not Go errors, matching how a
// real nameserver's query path behaves.
func (ns *Nameserver) HandleQuery(q *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(q)
	resp.Authoritative = true

	if len(q.Question) != 1 {
		resp.Rcode = dns.RcodeFormatError
		return resp
	}
	question := q.Question[0]

	qname, err := zone.NewName(question.Name)
	if err != nil {
		resp.Rcode = dns.RcodeFormatError
		return resp
	}

	entry, ok := ns.ZoneFor(qname)
	if !ok {
		resp.Rcode = dns.RcodeRefused // not authoritative for this namespace
		return resp
	}

	zc := entry.Handle.Load()

	if zc.Hash != nil {
		if node, found := zc.Hash.Get(qname); found {
			respondForNode(resp, node, question.Qtype)
			return resp
		}
	}

	result := zc.FindDname(qname)
	switch result.Kind {
	case zone.Found:
		respondForNode(resp, result.Node, question.Qtype)
		if len(resp.Answer) == 0 && resp.Authoritative {
			appendSOAForNegative(resp, zc)
		}
	case zone.Encloser:
		if result.Node.IsDelegationPoint() {
			referral(resp, result.Node)
			break
		}
		resp.Rcode = dns.RcodeNameError
		appendSOAForNegative(resp, zc)
	case zone.NotInZone:
		resp.Rcode = dns.RcodeRefused
	}
	return resp
}

// respondForNode answers from node, except when node is a delegation
// point and the query isn't itself asking about the delegation (NS/DS),
// in which case a referral is returned instead, per spec §3's DELEG flag
// and the standard "this server is not authoritative below here" referral
// behavior.
func respondForNode(resp *dns.Msg, node *zone.Node, qtype uint16) {
	if node.IsDelegationPoint() && qtype != dns.TypeNS && qtype != dns.TypeDS {
		referral(resp, node)
		return
	}
	answerFromNode(resp, node, qtype)
}

// referral fills resp.Ns with node's NS rrset and resp.Extra with glue
// address records for whichever of those NS targets resolve to a node
// inside this zone, per spec §3's embedded-name Node-linking invariant
// (ZoneContents.relinkEmbeddedNames / Node.EmbeddedTargets). The response
// is marked non-authoritative: everything at or below a delegation point
// is served by the delegated nameservers, not by this zone.
func referral(resp *dns.Msg, node *zone.Node) {
	resp.Authoritative = false
	ns, ok := node.GetRRSet(dns.TypeNS)
	if !ok {
		return
	}
	resp.Ns = append(resp.Ns, ns.RRs...)
	for _, rr := range ns.RRs {
		for _, target := range node.EmbeddedTargets(rr) {
			if target == nil {
				continue
			}
			if a, ok := target.GetRRSet(dns.TypeA); ok {
				resp.Extra = append(resp.Extra, a.RRs...)
			}
			if aaaa, ok := target.GetRRSet(dns.TypeAAAA); ok {
				resp.Extra = append(resp.Extra, aaaa.RRs...)
			}
		}
	}
}

// answerFromNode fills resp.Answer from node's RRset of the requested
// type (or, for ANY, every RRset at the node). When the node holds no data
// of that type it leaves resp.Answer empty (NODATA); for a node found via
// FindDname, HandleQuery then adds the zone's SOA to Ns, per standard DNS
// resolution behavior. The HashIndex fast path returns without adding it.
func answerFromNode(resp *dns.Msg, node *zone.Node, qtype uint16) {
	if qtype == dns.TypeANY {
		for _, rs := range node.RRSetsSnapshot() {
			resp.Answer = append(resp.Answer, rs.RRs...)
		}
		return
	}
	rs, ok := node.GetRRSet(qtype)
	if !ok {
		return // NOERROR/NODATA; caller leaves resp.Answer empty
	}
	resp.Answer = append(resp.Answer, rs.RRs...)
	if rs.RRSIGs != nil {
		resp.Answer = append(resp.Answer, rs.RRSIGs.RRs...)
	}
}

// appendSOAForNegative adds the zone's SOA to the authority section of an
// NXDOMAIN/NODATA response, per RFC 1035's negative-response convention.
func appendSOAForNegative(resp *dns.Msg, zc *zone.ZoneContents) {
	if soa, ok := zc.Apex.GetRRSet(dns.TypeSOA); ok {
		resp.Ns = append(resp.Ns, soa.RRs...)
	}
}
