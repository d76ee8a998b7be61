/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package tsig

import (
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/nice-redbull/knot/internal/zone"
)

const testSecret = "NoTrodDuvg0dyCtRcmqdCA==" // test-only base64 secret, not used anywhere real

func signedQuery(t *testing.T, keyName string, when time.Time) (*dns.Msg, []byte) {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeAXFR)
	m.SetTsig(dns.Fqdn(keyName), dns.HmacSHA256, 300, when.Unix())
	out, _, err := dns.TsigGenerate(m, testSecret, "", false)
	if err != nil {
		t.Fatalf("TsigGenerate: %v", err)
	}
	parsed := new(dns.Msg)
	if err := parsed.Unpack(out); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	return parsed, out
}

func TestVerifyInitialAcceptsValidSignature(t *testing.T) {
	keys := MapKeyStore{"axfr-key.": {Name: "axfr-key.", Algorithm: dns.HmacSHA256, Secret: testSecret}}
	now := time.Now()
	parsed, wire := signedQuery(t, "axfr-key.", now)

	ctx, err := NewContext(keys, "axfr-key.")
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.VerifyInitial(wire, parsed, now); err != nil {
		t.Fatalf("expected valid signature to verify, got %v", err)
	}
}

func TestVerifyInitialRejectsBadTime(t *testing.T) {
	keys := MapKeyStore{"axfr-key.": {Name: "axfr-key.", Algorithm: dns.HmacSHA256, Secret: testSecret}}
	signedAt := time.Now().Add(-1 * time.Hour)
	parsed, wire := signedQuery(t, "axfr-key.", signedAt)

	ctx, err := NewContext(keys, "axfr-key.")
	if err != nil {
		t.Fatal(err)
	}
	err = ctx.VerifyInitial(wire, parsed, time.Now())
	if err == nil {
		t.Fatalf("expected a BADTIME failure for a signature far outside the fudge window")
	}
	e, ok := err.(*zone.Error)
	if !ok || e.Kind != zone.TsigBadTime {
		t.Fatalf("expected TsigBadTime, got %v", err)
	}
}

func TestVerifyInitialRejectsUnknownKey(t *testing.T) {
	keys := MapKeyStore{}
	_, err := NewContext(keys, "missing-key.")
	if err == nil {
		t.Fatalf("expected failure for an unconfigured key name")
	}
	e, ok := err.(*zone.Error)
	if !ok || e.Kind != zone.TsigBadKey {
		t.Fatalf("expected TsigBadKey, got %v", err)
	}
}

func TestUnsignedStreamSkipsVerification(t *testing.T) {
	ctx, err := NewContext(MapKeyStore{}, "")
	if err != nil {
		t.Fatal(err)
	}
	m := new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeAXFR)
	wire, err := m.Pack()
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.VerifyInitial(wire, m, time.Now()); err != nil {
		t.Fatalf("expected an unsigned stream with no configured key to pass trivially, got %v", err)
	}
}
