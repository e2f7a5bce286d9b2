package ber

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindUnsigned
	KindBytes
	KindString
	KindOID
	KindIPAddress
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindUnsigned:
		return "unsigned"
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindOID:
		return "oid"
	case KindIPAddress:
		return "ip"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is the decoded content of a var-binding: exactly one of a signed
// integer, an unsigned integer, an octet sequence, a string, an object
// identifier, an IPv4 address or null. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	u    uint64
	b    []byte
	s    string
	oid  OID
	ip   netip.Addr
}

func Null() Value { return Value{} }
func Int(v int64) Value { return Value{kind: KindInteger, i: v} }
func Uint(v uint64) Value { return Value{kind: KindUnsigned, u: v} }
func Bytes(v []byte) Value { return Value{kind: KindBytes, b: v} }
func Str(v string) Value { return Value{kind: KindString, s: v} }
func ObjectID(v OID) Value { return Value{kind: KindOID, oid: v} }
func IP(v netip.Addr) Value { return Value{kind: KindIPAddress, ip: v} }

// Kind reports the held variant.
func (v Value) Kind() Kind { return v.kind }

func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInteger }
func (v Value) AsUint() (uint64, bool) { return v.u, v.kind == KindUnsigned }
func (v Value) AsOID() (OID, bool) { return v.oid, v.kind == KindOID }
func (v Value) AsIP() (netip.Addr, bool) { return v.ip, v.kind == KindIPAddress }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool) { return v.b, v.kind == KindBytes }

// Octets returns the raw content of a Bytes or String value.
func (v Value) Octets() ([]byte, bool) {
	switch v.kind {
	case KindBytes:
		return v.b, true
	case KindString:
		return []byte(v.s), true
	}
	return nil, false
}

// Interface returns the held variant as a plain Go value: int64, uint64,
// []byte, string, OID, netip.Addr or nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindUnsigned:
		return v.u
	case KindBytes:
		return v.b
	case KindString:
		return v.s
	case KindOID:
		return v.oid
	case KindIPAddress:
		return v.ip
	case KindNull:
		return nil
	}
	return nil
}

// Equal is structural. Bytes and String values are both octet strings on the
// wire and compare equal when their octets match, so a String survives an
// encode/decode round trip.
func (v Value) Equal(o Value) bool {
	if vb, ok := v.Octets(); ok {
		ob, ok := o.Octets()
		return ok && bytes.Equal(vb, ob)
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInteger:
		return v.i == o.i
	case KindUnsigned:
		return v.u == o.u
	case KindOID:
		return v.oid.Equal(o.oid)
	case KindIPAddress:
		return v.ip == o.ip
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindUnsigned:
		return strconv.FormatUint(v.u, 10)
	case KindBytes:
		if printable(v.b) {
			return string(v.b)
		}
		return "0x" + hex.EncodeToString(v.b)
	case KindString:
		return v.s
	case KindOID:
		return v.oid.String()
	case KindIPAddress:
		return v.ip.String()
	}
	return fmt.Sprintf("<%s>", v.kind)
}

// MarshalJSON emits numbers as JSON numbers, null as null and everything
// else as its String form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInteger:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindUnsigned:
		return strconv.AppendUint(nil, v.u, 10), nil
	}
	return json.Marshal(v.String())
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
