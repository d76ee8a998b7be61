/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Canonical DNS name storage, grounded in the teacher's treatment of owner
 * names as plain strings (structs.go: OwnerData.Name) but reworked into the
 * immutable, interned representation the spec requires for closest-encloser
 * search and stable 32-bit identifiers.
 */

package zone

import (
	"strings"

	"github.com/miekg/dns"
)

// Name is an immutable FQDN in wire form plus precomputed metadata needed
// for canonical-order comparisons (RFC 4034 §6: compare right-to-left,
// label by label, case-insensitive byte order).
type Name struct {
	wire   []byte // uncompressed wire-form name, original case preserved
	labels []int  // label start-offsets into wire, in left-to-right order
	key    []byte // canonical comparison key (right-to-left, lowercased)
}

// NewName parses a presentation-format domain name into a Name. It does
// not intern; use a NameInterner/NameTable to dedupe.
func NewName(s string) (Name, error) {
	return nameFromString(s)
}

// nameFromString builds a Name from dns.SplitDomainName-style label
// splitting.
func nameFromString(s string) (Name, error) {
	fqdn := dns.Fqdn(s)
	labels := dns.SplitDomainName(fqdn)
	if labels == nil {
		// root
		return Name{wire: []byte("."), labels: []int{0}, key: []byte{}}, nil
	}
	offsets := make([]int, 0, len(labels)+1)
	pos := 0
	for _, l := range labels {
		offsets = append(offsets, pos)
		pos += len(l) + 1 // +1 for the separating dot we reconstruct below
	}
	wire := []byte(fqdn)
	key := canonicalKey(labels)
	return Name{wire: wire, labels: offsets, key: key}, nil
}

// canonicalKey builds a byte string such that bytes.Compare over two such
// keys yields the same order as comparing the names label-by-label from
// the root (RFC 4034 §6.1): walk labels right-to-left (i.e. root-first),
// length-prefix each lowercased label so that a label which is a prefix of
// another still sorts correctly (shorter-and-prefix sorts first).
func canonicalKey(labels []string) []byte {
	key := make([]byte, 0, 64)
	for i := len(labels) - 1; i >= 0; i-- {
		lbl := strings.ToLower(labels[i])
		key = append(key, byte(len(lbl)))
		key = append(key, lbl...)
	}
	return key
}

// String returns the presentation form (FQDN, trailing dot).
func (n Name) String() string {
	if len(n.wire) == 0 {
		return "."
	}
	return string(n.wire)
}

// LabelCount returns the number of labels, 0 for the root.
func (n Name) LabelCount() int {
	if n.String() == "." {
		return 0
	}
	return len(n.labels)
}

// Key returns the canonical comparison key. Two names compare equal under
// Compare iff their keys are byte-equal.
func (n Name) Key() []byte { return n.key }

// Compare returns -1, 0, 1 in canonical DNS order.
func (n Name) Compare(other Name) int {
	return compareKeys(n.key, other.key)
}

func compareKeys(a, b []byte) int {
	la, lb := len(a), len(b)
	m := la
	if lb < m {
		m = lb
	}
	for i := 0; i < m; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

// Equal is a cheap case-insensitive equality test via the canonical key.
func (n Name) Equal(other Name) bool { return compareKeys(n.key, other.key) == 0 }

// IsSubdomainOf reports whether n is other or a strict subdomain of other.
func (n Name) IsSubdomainOf(other Name) bool {
	return dns.IsSubDomain(other.String(), n.String())
}

// Parent returns the immediate parent name (one label chopped), and false
// if n is the root.
func (n Name) Parent() (Name, bool) {
	if n.LabelCount() == 0 {
		return Name{}, false
	}
	chopped, ok := chopLeft(n.String())
	if !ok {
		return Name{}, false
	}
	p, _ := nameFromString(chopped)
	return p, true
}

func chopLeft(fqdn string) (string, bool) {
	fqdn = dns.Fqdn(fqdn)
	if fqdn == "." {
		return "", false
	}
	off, end := dns.NextLabel(fqdn, 0)
	if end {
		return ".", true
	}
	return fqdn[off:], true
}

// IsWildcard reports whether the leftmost label is "*".
func (n Name) IsWildcard() bool {
	if n.LabelCount() == 0 {
		return false
	}
	labels := dns.SplitDomainName(n.String())
	return len(labels) > 0 && labels[0] == "*"
}
