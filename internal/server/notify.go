/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Inbound NOTIFY handling and refresh scheduling, per spec §4.4/§6 (RFC
 * 1996). Grounded in the teacher's notifyresponder.go (NOTIFY -> trigger
 * a zone refresh) and refreshengine.go's SOA-probe-before-AXFR pattern,
 * adapted to enqueue XFRTasks onto this core's Pool instead of driving a
 * blocking dns.Client call inline.
 */

package server

import (
	"fmt"
	"net"

	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/journal"
	"github.com/nice-redbull/knot/internal/tsig"
	"github.com/nice-redbull/knot/internal/xfr"
	"github.com/nice-redbull/knot/internal/zone"
)

// HandleNotify answers an inbound RFC 1996 NOTIFY for a secondary zone by
// acknowledging it (RCODE 0, per spec §6) and enqueuing a SOA probe so the
// actual refresh decision (up-to-date vs AXFR/IXFR) happens asynchronously
// on the XFR pool, never blocking the responder.
func (ns *Nameserver) HandleNotify(q *dns.Msg, peer string) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(q)

	if len(q.Question) != 1 {
		resp.Rcode = dns.RcodeFormatError
		return resp
	}
	zoneName := dns.Fqdn(q.Question[0].Name)

	entry, ok := ns.zones.Get(zoneName)
	if !ok || entry.Conf.Type != "secondary" {
		resp.Rcode = dns.RcodeRefused
		return resp
	}

	ns.ScheduleRefresh(zoneName)
	return resp
}

// ScheduleRefresh enqueues a SOA probe against entry's configured primary;
// the probe's completion callback (onRefreshProbeComplete, set here)
// decides whether to follow up with AXFR_IN or IXFR_IN.
func (ns *Nameserver) ScheduleRefresh(zoneName string) error {
	entry, ok := ns.zones.Get(zoneName)
	if !ok {
		return zone.NewError(zone.NoZone, "no such zone %s", zoneName)
	}
	if entry.Conf.Type != "secondary" {
		return zone.NewError(zone.InvalidArgument, "zone %s is not a secondary", zoneName)
	}

	task := ns.newTask(xfr.Soa, zoneName, entry.Conf.Primary)
	task.Handle = entry.Handle
	task.Journal = ns.journal
	task.LocalSerial = currentSerial(entry.Handle)
	if entry.Conf.Key != "" {
		ctx, err := tsig.NewContext(ns.keys, entry.Conf.Key)
		if err != nil {
			return err
		}
		task.Tsig = ctx
		task.Key = entry.Conf.Key
	}
	task.OnComplete = ns.onRefreshProbeComplete(entry)
	return ns.xfrPool.Submit(task)
}

// onRefreshProbeComplete builds the SOA probe's completion callback: if
// the primary's serial is newer than ours, follow up with an IXFR_IN
// attempt (which falls back to AXFR_IN per spec §4.4 if the primary
// cannot serve it).
func (ns *Nameserver) onRefreshProbeComplete(entry *ZoneEntry) func(*xfr.Task) {
	return func(t *xfr.Task) {
		if t.State != xfr.Done || t.UpToDate {
			return
		}
		follow := ns.newTask(xfr.IxfrIn, t.Zone, t.Peer)
		follow.Handle = t.Handle
		follow.Journal = t.Journal
		follow.LocalSerial = t.LocalSerial
		follow.Tsig = t.Tsig
		follow.Key = t.Key
		if err := ns.xfrPool.Submit(follow); err != nil {
			ns.log.Printf("xfr: zone %s: could not enqueue follow-up transfer: %v", t.Zone, err)
		}
	}
}

func currentSerial(h *zone.ZoneHandle) uint32 {
	zc := h.Load()
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

// SendNotify enqueues an outbound NOTIFY to each of zoneName's configured
// secondaries, per RFC 1996, typically called once a primary zone's
// generation has just been republished with a bumped serial.
func (ns *Nameserver) SendNotify(zoneName string) error {
	entry, ok := ns.zones.Get(zoneName)
	if !ok {
		return zone.NewError(zone.NoZone, "no such zone %s", zoneName)
	}
	var firstErr error
	for _, peer := range entry.Conf.Notify {
		task := ns.newTask(xfr.Notify, zoneName, peer)
		task.MaxRetries = 3
		if entry.Conf.Key != "" {
			ctx, err := tsig.NewContext(ns.keys, entry.Conf.Key)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			task.Tsig = ctx
		}
		if err := ns.xfrPool.Submit(task); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify %s -> %s: %w", zoneName, peer, err)
		}
	}
	return firstErr
}

// ServeOutboundTransfer handles an accepted AXFR/IXFR request from a peer
// asking to pull zoneName, per spec §2's "XFR outbound path serves
// directly from the snapshot." kind must be xfr.AxfrOut or xfr.IxfrOut.
// clientSerial is the serial carried in the client's IXFR query (ignored
// for AXFR).
func (ns *Nameserver) ServeOutboundTransfer(conn net.Conn, q *dns.Msg, kind xfr.Kind, zoneName string, clientSerial uint32) error {
	entry, ok := ns.zones.Get(zoneName)
	if !ok {
		return zone.NewError(zone.NoZone, "no such zone %s", zoneName)
	}
	loader := journal.NewIXFRLoader(ns.journal)
	return xfr.ServeTransfer(conn, q, kind, entry.Handle, loader, ns.keys, clientSerial)
}
