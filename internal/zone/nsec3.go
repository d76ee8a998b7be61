/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * NSEC3 hashed-owner computation (RFC 5155 §5), grounded in the teacher's
 * DNSSEC validation helpers (dnssec_validate.go, nsec.go) which use
 * miekg/dns's dns.HashName for the equivalent computation in the resolver
 * path; reused here for the authoritative side per spec §4.2.
 */

package zone

import (
	"strings"

	"github.com/miekg/dns"
)

// NSEC3PARAM carries the hash parameters published by a zone's own
// NSEC3PARAM RRset.
type NSEC3PARAM struct {
	Hash       uint8
	Flags      uint8
	Iterations uint16
	Salt       string // hex-encoded, as in the wire RR
}

// HashedOwnerName computes base32hex(H(salt, owner, iterations)) + apex,
// per spec §4.2's nsec3_name composition. algorithm 1 (SHA-1) is the only
// one defined by RFC 5155 and the only one miekg/dns implements via
// dns.HashName.
func HashedOwnerName(owner Name, apex Name, p NSEC3PARAM) (Name, error) {
	if p.Hash != dns.SHA1 {
		return Name{}, newErr(Crypto, "unsupported nsec3 hash algorithm %d", p.Hash)
	}
	hashed := dns.HashName(owner.String(), p.Hash, p.Iterations, p.Salt)
	full := strings.ToLower(hashed) + "." + apex.String()
	return nameFromString(full)
}
