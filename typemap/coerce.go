package typemap

import (
	"math"
	"net/netip"
	"strings"

	"github.com/vpbank/snmp_trapmap/snmp/ber"
)

// Coercions from a decoded var-binding value to a field's semantic type.
// Each returns ok=false when the value cannot represent the target; the
// caller then leaves the field at its zero value.

// Integer is the constraint accepted by Number.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func toInt64(v ber.Value) (int64, bool) {
	switch v.Kind() {
	case ber.KindInteger:
		return v.AsInt()
	case ber.KindUnsigned:
		u, _ := v.AsUint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func toUint64(v ber.Value) (uint64, bool) {
	switch v.Kind() {
	case ber.KindUnsigned:
		return v.AsUint()
	case ber.KindInteger:
		i, _ := v.AsInt()
		if i < 0 {
			return 0, false
		}
		return uint64(i), true
	}
	return 0, false
}

// toNumber narrows or widens into N, rejecting values that would change
// sign or lose bits.
func toNumber[N Integer](v ber.Value) (N, bool) {
	switch v.Kind() {
	case ber.KindInteger:
		i, _ := v.AsInt()
		n := N(i)
		if int64(n) != i || (i < 0) != (n < 0) {
			return 0, false
		}
		return n, true
	case ber.KindUnsigned:
		u, _ := v.AsUint()
		n := N(u)
		if uint64(n) != u || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// toString accepts octet strings, trimming the trailing NULs some agents
// append, and renders OIDs and addresses in their textual form.
func toString(v ber.Value) (string, bool) {
	switch v.Kind() {
	case ber.KindString:
		s, _ := v.AsString()
		return s, true
	case ber.KindBytes:
		b, _ := v.AsBytes()
		return strings.TrimRight(string(b), "\x00"), true
	case ber.KindOID, ber.KindIPAddress:
		return v.String(), true
	}
	return "", false
}

func toBytes(v ber.Value) ([]byte, bool) {
	switch v.Kind() {
	case ber.KindBytes, ber.KindString:
		return v.Octets()
	}
	return nil, false
}

func toOID(v ber.Value) (ber.OID, bool) {
	switch v.Kind() {
	case ber.KindOID:
		return v.AsOID()
	case ber.KindBytes, ber.KindString:
		s, _ := toString(v)
		o, err := ber.ParseOID(s)
		return o, err == nil
	}
	return nil, false
}

// toIP accepts an IpAddress, a raw 4- or 16-byte octet string, or text that
// parses as an address.
func toIP(v ber.Value) (netip.Addr, bool) {
	switch v.Kind() {
	case ber.KindIPAddress:
		return v.AsIP()
	case ber.KindBytes:
		b, _ := v.AsBytes()
		if a, ok := netip.AddrFromSlice(b); ok {
			return a.Unmap(), true
		}
		return netip.Addr{}, false
	case ber.KindString:
		s, _ := v.AsString()
		a, err := netip.ParseAddr(s)
		return a, err == nil
	}
	return netip.Addr{}, false
}

// parseSourceAddress accepts "ip" and "ip:port" forms.
func parseSourceAddress(s string) (netip.Addr, bool) {
	if a, err := netip.ParseAddr(s); err == nil {
		return a.Unmap(), true
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	return netip.Addr{}, false
}
