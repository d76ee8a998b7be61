/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * UPDATE forwarding (RFC 2136, spec §6/SPEC_FULL.md §5): a secondary that
 * receives a DNS UPDATE for a zone it does not itself accept updates for
 * rewrites the header ID and forwards the message verbatim to the zone's
 * configured primary, then relays whatever comes back. Grounded in the
 * teacher's updateresponder.go/UpdateResponder, restricted to this core's
 * narrower contract per SPEC_FULL.md §5: no validation/policy engine (that
 * belongs to the excluded DNS UPDATE processing pipeline).
 */

package server

import (
	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/xfr"
	"github.com/nice-redbull/knot/internal/zone"
)

// ForwardUpdate enqueues an UPDATE_FORWARD XFRTask that rewrites q's header
// ID, sends it to zoneName's configured primary, and relays the response
// via onResponse once it arrives (the accepted front-end connection's
// owner is responsible for writing that response back to the original
// updater — out of this core's scope per spec §1).
func (ns *Nameserver) ForwardUpdate(q *dns.Msg, zoneName string, onResponse func(*dns.Msg, error)) error {
	entry, ok := ns.zones.Get(zoneName)
	if !ok {
		return zone.NewError(zone.NoZone, "no such zone %s", zoneName)
	}
	if entry.Conf.Type != "secondary" {
		return zone.NewError(zone.InvalidArgument, "zone %s does not forward updates (not a secondary)", zoneName)
	}
	if entry.Conf.Primary == "" {
		return zone.NewError(zone.InvalidArgument, "zone %s has no configured primary to forward to", zoneName)
	}

	forwarded := q.Copy()
	forwarded.Id = dns.Id()

	wire, err := forwarded.Pack()
	if err != nil {
		return zone.NewError(zone.Malformed, "packing update for forwarding: %v", err)
	}

	task := ns.newTask(xfr.UpdateForward, zoneName, entry.Conf.Primary)
	task.ForwardWire = wire
	task.OnComplete = func(t *xfr.Task) {
		if t.State != xfr.Done {
			onResponse(nil, t.Err)
			return
		}
		resp := new(dns.Msg)
		if err := resp.Unpack(t.ResponseWire); err != nil {
			onResponse(nil, err)
			return
		}
		resp.Id = q.Id // relay to the original updater with its own id restored
		onResponse(resp, nil)
	}
	return ns.xfrPool.Submit(task)
}
