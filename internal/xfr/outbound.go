/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Outbound AXFR_OUT/IXFR_OUT serving, per spec §2's data-flow note ("XFR
 * outbound path serves directly from the snapshot") and §4.4/§6. Unlike
 * the inbound Worker/Pool, which must multiplex hundreds of concurrently
 * dialed-out connections in one non-blocking event loop (spec §5), serving
 * a transfer we were asked for is naturally one blocking goroutine per
 * accepted connection — each secondary pulls the stream at its own pace,
 * and nothing here needs to watch any *other* fd while it does. That
 * per-connection goroutine itself belongs to the "UDP/TCP receive
 * front-end" spec §1 places out of scope; this file is the part that
 * front-end calls into once it has accepted a transfer request and handed
 * this core the already-decoded query.
 *
 * Grounded in the teacher's zone_utils.go (its DoTransfer/AXFR assembly
 * helpers) and teacher_ref/ixfr's DiffSequence wire-encoding shape,
 * generalized from the teacher's single dns.Transfer()-based blocking
 * client call to an explicit multi-message writer driven by this core's
 * NameTree/Node model.
 */

package xfr

import (
	"encoding/binary"
	"net"
	"sort"
	"time"

	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/journal"
	"github.com/nice-redbull/knot/internal/tsig"
	"github.com/nice-redbull/knot/internal/zone"
)

// maxRRsPerMessage bounds how many records this core packs into a single
// AXFR/IXFR response message before starting a new one. A precise
// wire-size budget (the 64KB single-message write a real nameserver
// enforces) is not implemented; this fixed count is a simple, documented
// stand-in sized well under typical message limits for ordinary resource
// records.
const maxRRsPerMessage = 100

// writeDeadline bounds each write to an outbound transfer peer; spec §5
// frames XFR timeouts in terms of an "extended watchdog... refreshed on
// every successful receive" for the inbound side, the same budget applies
// symmetrically here to avoid a stalled secondary wedging a goroutine
// forever.
const writeDeadline = 60 * time.Second

// ServeTransfer services an already-accepted AXFR or IXFR request: it
// writes the zone's current contents (or an incremental changeset
// sequence) framed as length-prefixed DNS messages over conn, TSIG-signing
// per spec §4.6 with the request's key when q carries a TSIG RR. kind must be AxfrOut or
// IxfrOut. For IxfrOut, loader is consulted for a changeset sequence
// covering [clientSerial, currentSerial]; a Fallback outcome serves AXFR
// instead, per spec §4.4's "IXFR_OUT lacking a reconstructible history
// falls through to AXFR_OUT."
func ServeTransfer(conn net.Conn, q *dns.Msg, kind Kind, handle *zone.ZoneHandle, loader *journal.IXFRLoader, keys tsig.KeyStore, clientSerial uint32) error {
	zc := handle.Load()

	var tsigCtx *tsig.Context
	if keyName := requestTsigKeyName(q); keyName != "" {
		ctx, err := tsig.NewContext(keys, keyName)
		if err != nil {
			return err
		}
		tsigCtx = ctx
	}

	if kind == IxfrOut {
		outcome, err := loader.Fetch(zc.ApexName().String(), clientSerial, currentSerial(zc))
		if err != nil {
			return err
		}
		if !outcome.Fallback {
			msgs := BuildIXFRMessages(q, zc, outcome.Changesets)
			return writeMessages(conn, msgs, tsigCtx)
		}
		// Fall through to AXFR: the RFC 1995 §4 signal for "ixfr not
		// possible, here is a full transfer instead" is simply an answer
		// whose second record is not a SOA, which BuildAXFRMessages
		// produces naturally.
	}

	msgs := BuildAXFRMessages(q, zc)
	return writeMessages(conn, msgs, tsigCtx)
}

func currentSerial(zc *zone.ZoneContents) uint32 {
	soa, ok := zc.Apex.GetRRSet(dns.TypeSOA)
	if !ok || len(soa.RRs) == 0 {
		return 0
	}
	s, ok := soa.RRs[0].(*dns.SOA)
	if !ok {
		return 0
	}
	return s.Serial
}

func requestTsigKeyName(q *dns.Msg) string {
	if q == nil || len(q.Extra) == 0 {
		return ""
	}
	if t, ok := q.Extra[len(q.Extra)-1].(*dns.TSIG); ok {
		return t.Hdr.Name
	}
	return ""
}

// CollectAXFRRecords walks zc's NameTree in canonical order and flattens it
// into the RR sequence an AXFR response carries: the apex SOA, then every
// other RRset at every node in canonical order, then the same SOA again as the
// RFC 5936 terminator. RRset types within a node are sorted for
// deterministic output; this is not itself a spec requirement but makes
// transfers reproducible for testing.
func CollectAXFRRecords(zc *zone.ZoneContents) []dns.RR {
	soaSet, hasSOA := zc.Apex.GetRRSet(dns.TypeSOA)
	var out []dns.RR
	if hasSOA {
		out = append(out, soaSet.RRs...)
	}

	zc.Nodes.ApplyInorder(func(n *zone.Node) bool {
		rrsets := n.RRSetsSnapshot()
		sort.Slice(rrsets, func(i, j int) bool { return rrsets[i].Type < rrsets[j].Type })
		for _, rs := range rrsets {
			if n == zc.Apex && rs.Type == dns.TypeSOA {
				continue // already emitted first
			}
			out = append(out, rs.RRs...)
			if rs.RRSIGs != nil {
				out = append(out, rs.RRSIGs.RRs...)
			}
		}
		return true
	})

	if hasSOA {
		out = append(out, soaSet.RRs...)
	}
	return out
}

// BuildAXFRMessages packs CollectAXFRRecords' output into one or more
// dns.Msg responses to q, chunked to maxRRsPerMessage, per RFC 5936.
func BuildAXFRMessages(q *dns.Msg, zc *zone.ZoneContents) []*dns.Msg {
	records := CollectAXFRRecords(zc)
	return chunkIntoMessages(q, records)
}

// BuildIXFRMessages packs an IXFR changeset sequence into the RFC 1995 §4
// wire format: initial SOA (new serial), then per changeset a removal SOA
// (old serial) + removed RRs + addition SOA (new serial) + added RRs,
// terminated by the final SOA again.
func BuildIXFRMessages(q *dns.Msg, zc *zone.ZoneContents, changesets []journal.Changeset) []*dns.Msg {
	soaSet, _ := zc.Apex.GetRRSet(dns.TypeSOA)
	var finalSOA dns.RR
	if soaSet != nil && len(soaSet.RRs) > 0 {
		finalSOA = soaSet.RRs[0]
	}

	records := make([]dns.RR, 0, 4*len(changesets)+2)
	if finalSOA != nil {
		records = append(records, finalSOA)
	}
	for _, cs := range changesets {
		records = append(records, soaAt(finalSOA, cs.FromSerial))
		records = append(records, cs.Removed...)
		records = append(records, soaAt(finalSOA, cs.ToSerial))
		records = append(records, cs.Added...)
	}
	if finalSOA != nil {
		records = append(records, finalSOA)
	}
	return chunkIntoMessages(q, records)
}

// soaAt clones template with its Serial field replaced, used to emit the
// per-changeset delimiter SOAs an IXFR stream requires without having to
// carry a full SOA record per journal changeset.
func soaAt(template dns.RR, serial uint32) dns.RR {
	soa, ok := template.(*dns.SOA)
	if !ok {
		return template
	}
	clone := *soa
	clone.Serial = serial
	return &clone
}

func chunkIntoMessages(q *dns.Msg, records []dns.RR) []*dns.Msg {
	if len(records) == 0 {
		m := new(dns.Msg)
		m.SetReply(q)
		return []*dns.Msg{m}
	}
	var out []*dns.Msg
	for len(records) > 0 {
		n := maxRRsPerMessage
		if n > len(records) {
			n = len(records)
		}
		m := new(dns.Msg)
		m.SetReply(q)
		m.Answer = append(m.Answer, records[:n]...)
		out = append(out, m)
		records = records[n:]
	}
	return out
}

// writeMessages signs (if tsigCtx is non-nil) and frames each message over
// conn, per spec §4.6: "a TSIG RR need only appear on every 100th message
// or the last message... the implementation MUST accept streams that sign
// every message." This core signs every message, the stricter and
// unconditionally-interoperable choice.
func writeMessages(conn net.Conn, msgs []*dns.Msg, tsigCtx *tsig.Context) error {
	now := time.Now()
	for _, m := range msgs {
		var wire []byte
		var err error
		if tsigCtx != nil {
			wire, err = tsigCtx.Sign(m, tsig.DefaultFudge, now)
		} else {
			wire, err = m.Pack()
		}
		if err != nil {
			return err
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
			return err
		}
		if err := writeFramed(conn, wire); err != nil {
			return err
		}
	}
	return nil
}

func writeFramed(conn net.Conn, wire []byte) error {
	framed := make([]byte, 2+len(wire))
	binary.BigEndian.PutUint16(framed, uint16(len(wire)))
	copy(framed[2:], wire)
	_, err := conn.Write(framed)
	return err
}
