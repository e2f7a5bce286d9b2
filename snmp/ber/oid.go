// Package ber implements the subset of ASN.1 Basic Encoding Rules (X.690)
// needed to carry SNMP v1/v2c messages: definite-length TLV framing, INTEGER,
// the unsigned application types, OCTET STRING, NULL, OBJECT IDENTIFIER and
// IpAddress. Higher-level message framing lives in package datagram.
package ber

import (
	"slices"
	"strconv"
	"strings"
)

// OID is an SNMP object identifier stored as its numeric arcs.
//
// The nil OID is the "no registration" sentinel returned by lookups that find
// nothing; IsZero reports it. Values returned by this package are never
// mutated after construction, callers that need a private copy use Clone.
type OID []uint32

// ParseOID parses a dotted-decimal object identifier such as
// "1.3.6.1.6.3.1.1.4.1.0". A single leading dot, as printed by net-snmp and
// gosnmp, is accepted and dropped. Arcs are canonical decimal: "01" is
// rejected rather than read as 1.
func ParseOID(s string) (OID, error) {
	in := s
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return nil, &FormatError{Input: in, Reason: "empty object identifier"}
	}

	parts := strings.Split(s, ".")
	oid := make(OID, 0, len(parts))
	for i, p := range parts {
		if p == "" {
			return nil, &FormatError{Input: in, Reason: "empty arc at position " + strconv.Itoa(i)}
		}
		if p[0] == '-' {
			return nil, &FormatError{Input: in, Reason: "negative arc " + strconv.Quote(p)}
		}
		if p[0] == '+' {
			return nil, &FormatError{Input: in, Reason: "non-numeric arc " + strconv.Quote(p)}
		}
		// String must reproduce the input, so "01" is not an alias of "1".
		if len(p) > 1 && p[0] == '0' {
			return nil, &FormatError{Input: in, Reason: "leading zero in arc " + strconv.Quote(p)}
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			reason := "non-numeric arc " + strconv.Quote(p)
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				reason = "arc " + p + " overflows 32 bits"
			}
			return nil, &FormatError{Input: in, Reason: reason, Err: err}
		}
		oid = append(oid, uint32(n))
	}
	return oid, nil
}

// MustParseOID is like ParseOID but panics on error. Intended for
// package-level well-known identifiers.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// String renders the canonical dotted form without a leading dot.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(o) * 4)
	for i, arc := range o {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.FormatUint(uint64(arc), 10))
	}
	return sb.String()
}

// Key returns a string usable as a map key. Two OIDs have the same key if and
// only if they are Equal.
func (o OID) Key() string { return o.String() }

// IsZero reports whether o is the empty sentinel.
func (o OID) IsZero() bool { return len(o) == 0 }

// Equal reports arc-by-arc equality.
func (o OID) Equal(other OID) bool { return slices.Equal(o, other) }

// Compare orders OIDs lexicographically by arc; a proper prefix sorts first.
func (o OID) Compare(other OID) int { return slices.Compare(o, other) }

// HasPrefix reports whether prefix is a leading subsequence of o.
func (o OID) HasPrefix(prefix OID) bool {
	return len(prefix) <= len(o) && slices.Equal(o[:len(prefix)], prefix)
}

// Clone returns an independent copy.
func (o OID) Clone() OID { return slices.Clone(o) }

// Append returns a new OID with arcs appended to o.
func (o OID) Append(arcs ...uint32) OID {
	out := make(OID, 0, len(o)+len(arcs))
	out = append(out, o...)
	return append(out, arcs...)
}

// MarshalText renders the dotted form so OIDs serialise as JSON strings.
func (o OID) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText parses the dotted form.
func (o *OID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*o = nil
		return nil
	}
	v, err := ParseOID(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
