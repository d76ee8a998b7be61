/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * advance(): per-message XFRTask state advancement, per spec §4.4's Running
 * and Finalizing behavior. Grounded in the teacher's refreshengine.go
 * (the place zone refresh results get folded into a ZoneData and
 * published) generalized to this core's copy-on-write ZoneContents/
 * ZoneHandle model and to a streaming, many-small-messages transfer
 * instead of the teacher's single in-memory dns.Transfer() call.
 */

package xfr

import (
	"time"

	"github.com/miekg/dns"
	"github.com/twotwotwo/sorts"

	"github.com/nice-redbull/knot/internal/journal"
	"github.com/nice-redbull/knot/internal/zone"
)

// advance folds one received, parsed message into t's state, returning
// done=true once the task has reached a terminal outcome for this
// exchange (the caller then tears the connection down).
func advance(t *Task, wire []byte, parsed *dns.Msg, rc *rawConn) (bool, error) {
	now := time.Now()

	if t.Tsig != nil {
		firstMessage := len(t.accumulated) == 0
		var verifyErr error
		if firstMessage {
			verifyErr = t.Tsig.VerifyInitial(wire, parsed, now)
		} else {
			verifyErr = t.Tsig.VerifyNext(wire, parsed, now)
		}
		if verifyErr != nil {
			return false, verifyErr
		}
	}

	if t.Kind == UpdateForward {
		// A forwarder relays whatever the primary sent back, error RCODEs
		// included; it is not this task's place to second-guess the
		// primary's answer to the update, per SPEC_FULL.md §5.
		t.ResponseWire = wire
		return true, nil
	}

	if parsed.Rcode != dns.RcodeSuccess {
		return false, translateRcode(t, parsed.Rcode)
	}

	switch t.Kind {
	case Soa:
		return advanceSOA(t, parsed)
	case Notify:
		return true, nil
	case AxfrIn, IxfrIn:
		return advanceTransfer(t, parsed)
	default:
		return true, nil
	}
}

func advanceSOA(t *Task, parsed *dns.Msg) (bool, error) {
	if len(parsed.Answer) == 0 {
		return false, zone.NewError(zone.NotEnoughData, "soa probe for %s returned no answer", t.Zone)
	}
	soa, ok := parsed.Answer[0].(*dns.SOA)
	if !ok {
		return false, zone.NewError(zone.Malformed, "soa probe answer for %s is not an SOA", t.Zone)
	}
	t.RemoteSerial = soa.Serial
	t.UpToDate = !serialGreaterThan(soa.Serial, t.LocalSerial)
	return true, nil
}

// serialGreaterThan implements RFC 1982 serial number arithmetic for the
// 32-bit SOA serial comparisons used by SOA probes and IXFR bookkeeping.
func serialGreaterThan(a, b uint32) bool {
	return int32(a-b) > 0
}

// advanceTransfer accumulates answer records across one or more messages
// of an AXFR/IXFR response stream and, once the terminating SOA closes the
// stream, parses and applies the result, per spec §4.4's Running ->
// Finalizing -> Done path.
func advanceTransfer(t *Task, parsed *dns.Msg) (bool, error) {
	t.accumulated = append(t.accumulated, parsed.Answer...)
	if len(t.accumulated) == 0 {
		return false, nil
	}

	if !t.initialSOA {
		soa, ok := t.accumulated[0].(*dns.SOA)
		if !ok {
			return false, zone.NewError(zone.Malformed, "transfer response for %s does not begin with SOA", t.Zone)
		}
		t.initialSerial = soa.Serial
		t.initialSOA = true
	}

	last := t.accumulated[len(t.accumulated)-1]
	soa, isSOA := last.(*dns.SOA)
	if !isSOA || soa.Serial != t.initialSerial || len(t.accumulated) == 1 {
		return false, nil
	}

	result, err := ParseTransferResponse(t.accumulated)
	if err != nil {
		return false, err
	}
	t.result = result

	if err := finalizeTransfer(t); err != nil {
		return false, err
	}
	return true, nil
}

// finalizeTransfer builds (AXFR) or applies (IXFR) t's parsed transfer
// result to t.Handle and persists it via t.Journal, per spec §4.4's
// Finalizing state: "the new generation is built/applied, published via
// ZoneHandle, and the journal/snapshot store updated."
func finalizeTransfer(t *Task) error {
	if t.result.IsAXFR {
		zc, err := buildZoneFromRRs(t.Zone, t.result.AXFRRecords)
		if err != nil {
			return err
		}
		if err := adjustIgnoringNoNSEC3(zc); err != nil {
			return err
		}
		if t.Handle != nil {
			t.Handle.Publish(zc)
		}
		if t.Journal != nil {
			if err := t.Journal.SaveZone(t.Zone, t.result.FinalSerial, t.result.AXFRRecords); err != nil {
				return err
			}
		}
		return nil
	}

	if t.Handle == nil {
		return zone.NewError(zone.NoZone, "ixfr task for %s has no zone handle to apply to", t.Zone)
	}
	zc := t.Handle.Load().ShallowCopy()
	for _, seq := range t.result.Sequences {
		for _, rr := range seq.Removed {
			removeRRFromZone(zc, rr)
		}
		for _, rr := range seq.Added {
			if err := addRRToZone(zc, rr); err != nil {
				return err
			}
		}
		if t.Journal != nil {
			cs := journal.Changeset{
				Zone: t.Zone, FromSerial: seq.StartSerial, ToSerial: seq.EndSerial,
				Added: seq.Added, Removed: seq.Removed,
			}
			if err := t.Journal.StoreAndApply(cs); err != nil {
				return err
			}
		}
	}
	if err := adjustIgnoringNoNSEC3(zc); err != nil {
		return err
	}
	t.Handle.Publish(zc)
	return nil
}

func adjustIgnoringNoNSEC3(zc *zone.ZoneContents) error {
	err := zc.Adjust()
	if err == nil {
		return nil
	}
	if zerr, ok := err.(*zone.Error); ok && zerr.Kind == zone.NoNSEC3Param {
		return nil
	}
	return err
}

// buildZoneFromRRs assembles a fresh ZoneContents from a flat AXFR answer
// list. rrs is bulk-sorted by owner name first (same twotwotwo/sorts
// parallel quicksort the teacher uses in dnsutils.go to presort Owners
// before rebuilding OwnerIndex), so a freshly bootstrapped zone's nodes are
// created in roughly canonical order instead of AXFR wire order.
func buildZoneFromRRs(apex string, rrs []dns.RR) (*zone.ZoneContents, error) {
	sorted := make([]dns.RR, len(rrs))
	copy(sorted, rrs)
	sorts.Quicksort(byOwnerName(sorted))

	zc, err := zone.NewZoneContents(apex)
	if err != nil {
		return nil, err
	}
	for _, rr := range sorted {
		if err := addRRToZone(zc, rr); err != nil {
			return nil, err
		}
	}
	return zc, nil
}

// byOwnerName sorts dns.RR by owner name, the sort.Interface sorts.Quicksort
// operates on.
type byOwnerName []dns.RR

func (o byOwnerName) Len() int           { return len(o) }
func (o byOwnerName) Swap(i, j int)      { o[i], o[j] = o[j], o[i] }
func (o byOwnerName) Less(i, j int) bool { return o[i].Header().Name < o[j].Header().Name }

// addRRToZone attaches a single RR to zc, creating its owner node (and any
// missing ancestors) if necessary, merging into any existing same-type
// rrset at that owner.
func addRRToZone(zc *zone.ZoneContents, rr dns.RR) error {
	h := rr.Header()
	ownerName, err := zone.NewName(h.Name)
	if err != nil {
		return zone.NewError(zone.Malformed, "bad owner name %q: %v", h.Name, err)
	}

	node, exists := zc.Nodes.Get(ownerName)
	if !exists {
		interned := zc.Names.AddOrDedupe(ownerName)
		node = zone.NewNode(interned)
		if err := zc.AddNode(ownerName, node, zone.AddNodeOptions{CreateParents: true, UseNameTable: true}); err != nil {
			return err
		}
	}

	rs, err := zone.NewRRSet([]dns.RR{rr})
	if err != nil {
		return err
	}
	return zc.AddRRSet(rs, node, zone.Merge)
}

// removeRRFromZone deletes a single RR from its owner's rrset of the
// matching type, dropping the rrset entirely once it is emptied. A remove
// for a name/type that is not present is a no-op: IXFR removal lists are
// trusted to describe the peer's actual diff (spec §4.4 does not require
// re-validating remove sets against current contents).
func removeRRFromZone(zc *zone.ZoneContents, rr dns.RR) {
	h := rr.Header()
	ownerName, err := zone.NewName(h.Name)
	if err != nil {
		return
	}
	node, ok := zc.Nodes.Get(ownerName)
	if !ok {
		return
	}
	rs, ok := node.GetRRSet(h.Rrtype)
	if !ok {
		return
	}
	target := rr.String()
	kept := rs.RRs[:0]
	for _, existing := range rs.RRs {
		if existing.String() != target {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		node.RemoveRRSet(h.Rrtype)
	} else {
		rs.RRs = kept
	}
}

// translateRcode maps a non-success response rcode to this core's error
// taxonomy, driving the IXFR->AXFR same-connection fallback decision in
// ixfrFallbackErr/Worker.onReadable.
func translateRcode(t *Task, rcode int) error {
	switch rcode {
	case dns.RcodeRefused:
		return zone.NewError(zone.XfrRefused, "peer refused %s for zone %s", t.Kind, t.Zone)
	case dns.RcodeNotImplemented:
		if t.Kind == IxfrIn {
			return zone.NewError(zone.NoIxfr, "peer does not support ixfr for zone %s", t.Zone)
		}
		return zone.NewError(zone.XfrRefused, "peer returned not implemented for %s zone %s", t.Kind, t.Zone)
	default:
		return zone.NewError(zone.Malformed, "peer returned rcode %s for %s zone %s", dns.RcodeToString[rcode], t.Kind, t.Zone)
	}
}

// ixfrFallbackErr reports whether err is the IXFR_IN -> AXFR_IN fallback
// trigger (peer lacks IXFR support or refused it outright), per spec
// §4.4/§6: "an IXFR_IN task that receives NOIXFR or REFUSED silently
// restarts as AXFR_IN on the same socket."
func ixfrFallbackErr(t *Task, err error) bool {
	if t.Kind != IxfrIn {
		return false
	}
	zerr, ok := err.(*zone.Error)
	return ok && (zerr.Kind == zone.NoIxfr || zerr.Kind == zone.XfrRefused)
}

// resetForAxfrFallback turns t in place into a fresh AXFR_IN task, clearing
// the IXFR accumulation state it had built up so far. The connection it is
// running on is left untouched: the caller re-sends the initial query on
// the same rawConn rather than dialing anew.
func resetForAxfrFallback(t *Task) {
	t.Kind = AxfrIn
	t.State = Running
	t.Err = nil
	t.result = TransferResult{}
	t.accumulated = nil
	t.initialSOA = false
	t.initialSerial = 0
	t.Attempt = 0
}
