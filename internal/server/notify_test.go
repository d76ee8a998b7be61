/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package server

import (
	"testing"

	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/config"
	"github.com/nice-redbull/knot/internal/zone"
)

func TestHandleNotifyRefusesForPrimaryZone(t *testing.T) {
	ns := newTestServer(t)
	ns.RegisterZone(config.ZoneConf{Name: "example.com.", Type: "primary"},
		newTestZone(t, "example.com.", "example.com. 3600 IN SOA ns1.example.com. host.example.com. 1 3600 900 604800 3600"))

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeSOA)
	q.Opcode = dns.OpcodeNotify

	resp := ns.HandleNotify(q, "192.0.2.53:53")
	if resp.Rcode != dns.RcodeRefused {
		t.Fatalf("rcode = %d, want refused for primary zone", resp.Rcode)
	}
}

func TestHandleNotifyUnknownZoneIsRefused(t *testing.T) {
	ns := newTestServer(t)
	q := new(dns.Msg)
	q.SetQuestion("nosuch.example.", dns.TypeSOA)
	resp := ns.HandleNotify(q, "192.0.2.53:53")
	if resp.Rcode != dns.RcodeRefused {
		t.Fatalf("rcode = %d, want refused for unregistered zone", resp.Rcode)
	}
}

func TestScheduleRefreshRejectsPrimaryZone(t *testing.T) {
	ns := newTestServer(t)
	ns.RegisterZone(config.ZoneConf{Name: "example.com.", Type: "primary"},
		newTestZone(t, "example.com.", "example.com. 3600 IN SOA ns1.example.com. host.example.com. 1 3600 900 604800 3600"))

	err := ns.ScheduleRefresh("example.com.")
	if err == nil {
		t.Fatal("expected error scheduling refresh for a primary zone")
	}
	zerr, ok := err.(*zone.Error)
	if !ok || zerr.Kind != zone.InvalidArgument {
		t.Fatalf("got %v, want InvalidArgument", err)
	}
}

func TestScheduleRefreshUnknownZone(t *testing.T) {
	ns := newTestServer(t)
	err := ns.ScheduleRefresh("nosuch.example.")
	if err == nil {
		t.Fatal("expected error for unregistered zone")
	}
}

func TestSendNotifyWithNoSecondariesIsNoop(t *testing.T) {
	ns := newTestServer(t)
	ns.RegisterZone(config.ZoneConf{Name: "example.com.", Type: "primary"},
		newTestZone(t, "example.com.", "example.com. 3600 IN SOA ns1.example.com. host.example.com. 1 3600 900 604800 3600"))

	if err := ns.SendNotify("example.com."); err != nil {
		t.Fatalf("SendNotify with no configured secondaries: %v", err)
	}
}

func TestServeOutboundTransferUnknownZone(t *testing.T) {
	ns := newTestServer(t)
	err := ns.ServeOutboundTransfer(nil, new(dns.Msg), 0, "nosuch.example.", 0)
	if err == nil {
		t.Fatal("expected error for unregistered zone")
	}
}
