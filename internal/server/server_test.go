/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package server

import (
	"testing"

	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/config"
	"github.com/nice-redbull/knot/internal/tsig"
	"github.com/nice-redbull/knot/internal/xfr"
	"github.com/nice-redbull/knot/internal/zone"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("dns.NewRR(%q): %v", s, err)
	}
	return rr
}

func newTestZone(t *testing.T, apex string, records ...string) *zone.ZoneHandle {
	t.Helper()
	zc, err := zone.NewZoneContents(apex)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range records {
		rr := mustRR(t, s)
		owner, err := zone.NewName(rr.Header().Name)
		if err != nil {
			t.Fatal(err)
		}
		node, ok := zc.Nodes.Get(owner)
		if !ok {
			interned := zc.Names.AddOrDedupe(owner)
			node = zone.NewNode(interned)
			if err := zc.AddNode(owner, node, zone.AddNodeOptions{CreateParents: true, UseNameTable: true}); err != nil {
				t.Fatal(err)
			}
		}
		rs, err := zone.NewRRSet([]dns.RR{rr})
		if err != nil {
			t.Fatal(err)
		}
		if err := zc.AddRRSet(rs, node, zone.Merge); err != nil {
			t.Fatal(err)
		}
	}
	if err := zc.Adjust(); err != nil {
		if zerr, ok := err.(*zone.Error); !ok || zerr.Kind != zone.NoNSEC3Param {
			t.Fatalf("Adjust: %v", err)
		}
	}
	return zone.NewZoneHandle(apex, zc)
}

func newTestServer(t *testing.T) *Nameserver {
	t.Helper()
	ns, err := New(1, 4, nil, tsig.MapKeyStore{}, xfr.DefaultTimeouts(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return ns
}

func TestZoneForFindsLongestEnclosingZone(t *testing.T) {
	ns := newTestServer(t)
	ns.RegisterZone(config.ZoneConf{Name: "example.com.", Type: "primary"},
		newTestZone(t, "example.com.", "example.com. 3600 IN SOA ns1.example.com. host.example.com. 1 3600 900 604800 3600"))

	qname, _ := zone.NewName("www.example.com.")
	entry, ok := ns.ZoneFor(qname)
	if !ok {
		t.Fatal("expected to find enclosing zone")
	}
	if entry.Conf.Name != "example.com." {
		t.Fatalf("got zone %s, want example.com.", entry.Conf.Name)
	}

	other, _ := zone.NewName("example.net.")
	if _, ok := ns.ZoneFor(other); ok {
		t.Fatal("expected no enclosing zone for example.net.")
	}
}
