/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package zone

import (
	"strings"
	"testing"

	"github.com/miekg/dns"
)

func TestHashedOwnerNameDeterministic(t *testing.T) {
	owner, _ := NewName("www.example.com.")
	apex, _ := NewName("example.com.")
	p := NSEC3PARAM{Hash: dns.SHA1, Iterations: 1, Salt: "aabbccdd"}

	h1, err := HashedOwnerName(owner, apex, p)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashedOwnerName(owner, apex, p)
	if err != nil {
		t.Fatal(err)
	}
	if !h1.Equal(h2) {
		t.Fatalf("expected deterministic hashing")
	}
	if !strings.HasSuffix(h1.String(), apex.String()) {
		t.Fatalf("expected hashed owner %s to be under apex %s", h1, apex)
	}
}

func TestHashedOwnerNameRejectsUnsupportedAlgorithm(t *testing.T) {
	owner, _ := NewName("www.example.com.")
	apex, _ := NewName("example.com.")
	p := NSEC3PARAM{Hash: 2, Iterations: 1, Salt: ""}

	_, err := HashedOwnerName(owner, apex, p)
	if err == nil {
		t.Fatalf("expected an error for an unsupported hash algorithm")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != Crypto {
		t.Fatalf("expected a Crypto kind error, got %v", err)
	}
}
