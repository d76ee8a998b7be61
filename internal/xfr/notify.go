/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Initial-query construction for each XFRTask sub-kind's Connecting ->
 * Running transition, per spec §4.4. No direct teacher analogue exists
 * (the teacher builds these via dns.Client/dns.Transfer's own internal
 * query construction); these messages are built by hand here since this
 * core owns the raw socket and must pack and frame them itself.
 */

package xfr

import (
	"time"

	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/tsig"
	"github.com/nice-redbull/knot/internal/zone"
)

// sendInitialQuery builds, signs (if t.Tsig is set) and transmits the
// message that starts t's Running state, per spec §4.4.
func sendInitialQuery(t *Task, rc *rawConn) error {
	if t.Kind == UpdateForward {
		if t.ForwardWire == nil {
			return zone.NewError(zone.InvalidArgument, "update-forward task carries no wire message")
		}
		return rc.send(t.ForwardWire)
	}

	m := new(dns.Msg)
	switch t.Kind {
	case AxfrIn:
		m.SetQuestion(dns.Fqdn(t.Zone), dns.TypeAXFR)
	case IxfrIn:
		m.SetQuestion(dns.Fqdn(t.Zone), dns.TypeIXFR)
		m.Ns = append(m.Ns, &dns.SOA{
			Hdr:    dns.RR_Header{Name: dns.Fqdn(t.Zone), Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 0},
			Serial: t.LocalSerial,
		})
	case Soa:
		m.SetQuestion(dns.Fqdn(t.Zone), dns.TypeSOA)
	case Notify:
		m.SetNotify(dns.Fqdn(t.Zone))
	default:
		return zone.NewError(zone.InvalidArgument, "cannot issue initial query for task kind %s", t.Kind)
	}

	var wire []byte
	var err error
	if t.Tsig != nil {
		wire, err = t.Tsig.Sign(m, tsig.DefaultFudge, time.Now())
	} else {
		wire, err = m.Pack()
	}
	if err != nil {
		return err
	}
	return rc.send(wire)
}
