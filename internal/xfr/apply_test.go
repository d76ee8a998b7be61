/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package xfr

import (
	"testing"

	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/zone"
)

func TestBuildZoneFromRRsProducesAdjustableZone(t *testing.T) {
	rrs := []dns.RR{
		soaRR(t, 1),
		mustRR(t, "example.com. 3600 IN NS ns1.example.com."),
		mustRR(t, "www.example.com. 3600 IN A 192.0.2.1"),
		soaRR(t, 1),
	}
	zc, err := buildZoneFromRRs("example.com.", rrs)
	if err != nil {
		t.Fatalf("buildZoneFromRRs: %v", err)
	}
	if err := adjustIgnoringNoNSEC3(zc); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	name, _ := zone.NewName("www.example.com.")
	res := zc.FindDname(name)
	if res.Kind != zone.Found {
		t.Fatalf("expected www.example.com to be found, got %v", res.Kind)
	}
}

func TestAddAndRemoveRRFromZone(t *testing.T) {
	zc, err := zone.NewZoneContents("example.com.")
	if err != nil {
		t.Fatalf("NewZoneContents: %v", err)
	}
	a1 := mustRR(t, "www.example.com. 3600 IN A 192.0.2.1")
	a2 := mustRR(t, "www.example.com. 3600 IN A 192.0.2.2")

	if err := addRRToZone(zc, a1); err != nil {
		t.Fatalf("add a1: %v", err)
	}
	if err := addRRToZone(zc, a2); err != nil {
		t.Fatalf("add a2: %v", err)
	}

	name, _ := zone.NewName("www.example.com.")
	node, ok := zc.Nodes.Get(name)
	if !ok {
		t.Fatalf("expected node to exist")
	}
	rs, ok := node.GetRRSet(dns.TypeA)
	if !ok || len(rs.RRs) != 2 {
		t.Fatalf("expected merged 2-record rrset, got %+v", rs)
	}

	removeRRFromZone(zc, a1)
	rs, ok = node.GetRRSet(dns.TypeA)
	if !ok || len(rs.RRs) != 1 {
		t.Fatalf("expected 1 record remaining after remove, got %+v", rs)
	}

	removeRRFromZone(zc, a2)
	if _, ok := node.GetRRSet(dns.TypeA); ok {
		t.Fatalf("expected rrset to be removed once emptied")
	}
}

func TestIxfrFallbackErrDetectsNoIxfrAndRefused(t *testing.T) {
	task := NewTask(IxfrIn, "example.com.", "127.0.0.1:53")

	if !ixfrFallbackErr(task, zone.NewError(zone.NoIxfr, "no history")) {
		t.Fatalf("expected NoIxfr to trigger fallback for an ixfr task")
	}
	if !ixfrFallbackErr(task, zone.NewError(zone.XfrRefused, "refused")) {
		t.Fatalf("expected XfrRefused to trigger fallback for an ixfr task")
	}
	if ixfrFallbackErr(task, errConnClosed) {
		t.Fatalf("expected a plain connection error not to trigger fallback")
	}

	axfrTask := NewTask(AxfrIn, "example.com.", "127.0.0.1:53")
	if ixfrFallbackErr(axfrTask, zone.NewError(zone.NoIxfr, "no history")) {
		t.Fatalf("expected fallback check to only apply to ixfr tasks")
	}
}

func TestResetForAxfrFallbackPreservesIdentityAndClearsAccumulation(t *testing.T) {
	task := NewTask(IxfrIn, "example.com.", "127.0.0.1:53")
	task.Peer = "127.0.0.1:53"
	task.LocalSerial = 5
	task.accumulated = []dns.RR{soaRR(t, 1)}
	task.initialSOA = true
	task.initialSerial = 1
	task.Attempt = 2
	task.Err = errConnClosed

	resetForAxfrFallback(task)

	if task.Kind != AxfrIn {
		t.Fatalf("expected task to become AxfrIn, got %v", task.Kind)
	}
	if task.State != Running {
		t.Fatalf("expected task to re-enter Running, got %v", task.State)
	}
	if task.Peer != "127.0.0.1:53" {
		t.Fatalf("expected peer (and thus connection identity) to be preserved")
	}
	if len(task.accumulated) != 0 || task.initialSOA || task.initialSerial != 0 || task.Attempt != 0 || task.Err != nil {
		t.Fatalf("expected ixfr accumulation state to be cleared, got %+v", task)
	}
}
