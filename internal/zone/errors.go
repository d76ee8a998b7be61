/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package zone

import "fmt"

// Kind enumerates the error taxonomy from the spec's error handling design.
// Each kind maps to an RCODE where applicable; the mapping lives in the
// xfr and server packages, which know about wire responses.
type Kind uint8

const (
	OK Kind = iota
	OutOfMemory
	InvalidArgument
	NotEnoughData
	NoSpace
	Malformed
	Crypto
	NoNSEC3Param
	OutOfZone
	HashFail
	Duplicate
	ZoneInsert
	NoZone
	NoNode
	DnamePtrTooLarge
	PayloadTooLarge
	CrcFail
	ConnectionRefused
	TsigBadKey
	TsigBadSig
	TsigBadTime
	XfrRefused
	NoIxfr
	NoXfr
	UpToDate
)

var kindNames = map[Kind]string{
	OK:                "OK",
	OutOfMemory:       "OUT_OF_MEMORY",
	InvalidArgument:   "INVALID_ARGUMENT",
	NotEnoughData:     "NOT_ENOUGH_DATA",
	NoSpace:           "NO_SPACE",
	Malformed:         "MALFORMED",
	Crypto:            "CRYPTO",
	NoNSEC3Param:      "NO_NSEC3PARAM",
	OutOfZone:         "OUT_OF_ZONE",
	HashFail:          "HASH_FAIL",
	Duplicate:         "DUPLICATE",
	ZoneInsert:        "ZONE_INSERT",
	NoZone:            "NO_ZONE",
	NoNode:            "NO_NODE",
	DnamePtrTooLarge:  "DNAME_PTR_TOO_LARGE",
	PayloadTooLarge:   "PAYLOAD_TOO_LARGE",
	CrcFail:           "CRC_FAIL",
	ConnectionRefused: "CONNECTION_REFUSED",
	TsigBadKey:        "TSIG_BADKEY",
	TsigBadSig:        "TSIG_BADSIG",
	TsigBadTime:       "TSIG_BADTIME",
	XfrRefused:        "XFR_REFUSED",
	NoIxfr:            "NO_IXFR",
	NoXfr:              "NO_XFR",
	UpToDate:          "UP_TO_DATE",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error wraps a Kind with a contextual message, mirroring the flat error
// kinds the spec requires while still satisfying the error interface idiom.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newErr(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// NewError builds an *Error of the given kind, for use by other packages
// in this module that need to report errors from the same taxonomy
// (internal/tsig, internal/journal, internal/xfr, internal/server).
func NewError(k Kind, format string, args ...interface{}) *Error {
	return newErr(k, format, args...)
}

// Is allows errors.Is(err, &zone.Error{Kind: zone.OutOfZone}) style checks:
// any *Error target with the same Kind matches, whatever its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
