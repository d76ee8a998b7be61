/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package journal

import (
	"testing"

	"github.com/miekg/dns"
)

func TestIXFRLoaderFetchOK(t *testing.T) {
	s := openTestStore(t)
	a := mustRR(t, "www.example.com. 300 IN A 192.0.2.1")
	if err := s.StoreAndApply(Changeset{Zone: "example.com.", FromSerial: 1, ToSerial: 2, Added: []dns.RR{a}}); err != nil {
		t.Fatal(err)
	}

	loader := NewIXFRLoader(s)
	out, err := loader.Fetch("example.com.", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Fallback {
		t.Fatalf("expected no fallback, got reason %q", out.Reason)
	}
	if len(out.Changesets) != 1 {
		t.Fatalf("expected 1 changeset, got %d", len(out.Changesets))
	}
}

func TestIXFRLoaderFetchSameSerialIsNoop(t *testing.T) {
	s := openTestStore(t)
	loader := NewIXFRLoader(s)
	out, err := loader.Fetch("example.com.", 5, 5)
	if err != nil {
		t.Fatal(err)
	}
	if out.Fallback || len(out.Changesets) != 0 {
		t.Fatalf("expected empty no-op outcome, got %+v", out)
	}
}

func TestIXFRLoaderFetchFallsBackOnNoHistory(t *testing.T) {
	s := openTestStore(t)
	loader := NewIXFRLoader(s)
	out, err := loader.Fetch("nohistory.example.", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Fallback {
		t.Fatalf("expected fallback for zone with no journal history")
	}
}

func TestIXFRLoaderFetchFallsBackOnGap(t *testing.T) {
	s := openTestStore(t)
	a := mustRR(t, "www.example.com. 300 IN A 192.0.2.1")
	if err := s.StoreAndApply(Changeset{Zone: "example.com.", FromSerial: 5, ToSerial: 6, Added: []dns.RR{a}}); err != nil {
		t.Fatal(err)
	}

	loader := NewIXFRLoader(s)
	out, err := loader.Fetch("example.com.", 1, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Fallback {
		t.Fatalf("expected fallback when requested range starts before recorded history")
	}
}
