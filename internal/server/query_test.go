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
)

func newQueryTestServer(t *testing.T) *Nameserver {
	t.Helper()
	ns, err := New(1, 4, nil, tsig.MapKeyStore{}, xfr.DefaultTimeouts(), nil)
	if err != nil {
		t.Fatal(err)
	}
	handle := newTestZone(t, "example.com.",
		"example.com. 3600 IN SOA ns1.example.com. host.example.com. 1 3600 900 604800 3600",
		"www.example.com. 3600 IN A 192.0.2.1",
	)
	ns.RegisterZone(config.ZoneConf{Name: "example.com.", Type: "primary"}, handle)
	return ns
}

func askQuestion(name string, qtype uint16) *dns.Msg {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), qtype)
	return q
}

func TestHandleQueryReturnsMatchingRRset(t *testing.T) {
	ns := newQueryTestServer(t)
	resp := ns.HandleQuery(askQuestion("www.example.com.", dns.TypeA))
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("rcode = %d, want success", resp.Rcode)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("len(Answer) = %d, want 1", len(resp.Answer))
	}
	a, ok := resp.Answer[0].(*dns.A)
	if !ok || a.A.String() != "192.0.2.1" {
		t.Fatalf("unexpected answer %v", resp.Answer[0])
	}
}

func TestHandleQueryNoDataReturnsSOAInAuthority(t *testing.T) {
	ns := newQueryTestServer(t)
	resp := ns.HandleQuery(askQuestion("www.example.com.", dns.TypeMX))
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("rcode = %d, want success (nodata)", resp.Rcode)
	}
	if len(resp.Answer) != 0 {
		t.Fatalf("expected empty answer for nodata, got %d", len(resp.Answer))
	}
	if len(resp.Ns) != 1 {
		t.Fatalf("expected SOA in authority, got %d records", len(resp.Ns))
	}
}

func TestHandleQueryNameErrorReturnsSOA(t *testing.T) {
	ns := newQueryTestServer(t)
	resp := ns.HandleQuery(askQuestion("nosuch.example.com.", dns.TypeA))
	if resp.Rcode != dns.RcodeNameError {
		t.Fatalf("rcode = %d, want NXDOMAIN", resp.Rcode)
	}
	if len(resp.Ns) != 1 {
		t.Fatalf("expected SOA in authority, got %d records", len(resp.Ns))
	}
}

func TestHandleQueryOutsideZoneIsRefused(t *testing.T) {
	ns := newQueryTestServer(t)
	resp := ns.HandleQuery(askQuestion("www.example.net.", dns.TypeA))
	if resp.Rcode != dns.RcodeRefused {
		t.Fatalf("rcode = %d, want refused", resp.Rcode)
	}
}

func TestHandleQueryReturnsReferralWithGlueForDelegation(t *testing.T) {
	ns, err := New(1, 4, nil, tsig.MapKeyStore{}, xfr.DefaultTimeouts(), nil)
	if err != nil {
		t.Fatal(err)
	}
	handle := newTestZone(t, "example.com.",
		"example.com. 3600 IN SOA ns1.example.com. host.example.com. 1 3600 900 604800 3600",
		"sub.example.com. 3600 IN NS ns1.sub.example.com.",
		"ns1.sub.example.com. 3600 IN A 192.0.2.1",
	)
	ns.RegisterZone(config.ZoneConf{Name: "example.com.", Type: "primary"}, handle)

	resp := ns.HandleQuery(askQuestion("www.sub.example.com.", dns.TypeA))
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("rcode = %d, want success (referral)", resp.Rcode)
	}
	if resp.Authoritative {
		t.Fatal("expected a delegation referral to be non-authoritative")
	}
	if len(resp.Answer) != 0 {
		t.Fatalf("expected no answer records for a referral, got %d", len(resp.Answer))
	}
	if len(resp.Ns) != 1 {
		t.Fatalf("expected 1 NS record in authority, got %d", len(resp.Ns))
	}
	if len(resp.Extra) != 1 {
		t.Fatalf("expected 1 glue A record in additional, got %d", len(resp.Extra))
	}
	a, ok := resp.Extra[0].(*dns.A)
	if !ok || a.A.String() != "192.0.2.1" {
		t.Fatalf("unexpected glue record %v", resp.Extra[0])
	}
}

func TestHandleQueryRejectsMultiQuestion(t *testing.T) {
	ns := newQueryTestServer(t)
	q := askQuestion("www.example.com.", dns.TypeA)
	q.Question = append(q.Question, q.Question[0])
	resp := ns.HandleQuery(q)
	if resp.Rcode != dns.RcodeFormatError {
		t.Fatalf("rcode = %d, want format error", resp.Rcode)
	}
}
