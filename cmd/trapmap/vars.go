package main

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/vpbank/snmp_trapmap/snmp/ber"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
)

// parseVarBind parses "OID=TYPE:VALUE" using the net-snmp type letters:
//
//	i INTEGER   u Gauge32   c Counter32   C Counter64   t TimeTicks
//	s STRING    x hex bytes a IpAddress   o OID         n Null
func parseVarBind(s string) (datagram.VarBind, error) {
	oidText, rest, ok := strings.Cut(s, "=")
	if !ok {
		return datagram.VarBind{}, fmt.Errorf("var-bind %q: expected OID=TYPE:VALUE", s)
	}
	oid, err := ber.ParseOID(strings.TrimPrefix(oidText, "."))
	if err != nil {
		return datagram.VarBind{}, fmt.Errorf("var-bind %q: %w", s, err)
	}
	typ, value, ok := strings.Cut(rest, ":")
	if !ok {
		return datagram.VarBind{}, fmt.Errorf("var-bind %q: expected TYPE:VALUE after '='", s)
	}

	switch typ {
	case "i":
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return datagram.VarBind{}, fmt.Errorf("var-bind %q: %w", s, err)
		}
		return datagram.Integer(oid, v), nil
	case "u", "c", "t":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return datagram.VarBind{}, fmt.Errorf("var-bind %q: %w", s, err)
		}
		switch typ {
		case "u":
			return datagram.Gauge32(oid, uint32(v)), nil
		case "c":
			return datagram.Counter32(oid, uint32(v)), nil
		}
		return datagram.TimeTicks(oid, uint32(v)), nil
	case "C":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return datagram.VarBind{}, fmt.Errorf("var-bind %q: %w", s, err)
		}
		return datagram.Counter64(oid, v), nil
	case "s":
		return datagram.Text(oid, value), nil
	case "x":
		b, err := hex.DecodeString(strings.ReplaceAll(value, " ", ""))
		if err != nil {
			return datagram.VarBind{}, fmt.Errorf("var-bind %q: %w", s, err)
		}
		return datagram.OctetString(oid, b), nil
	case "a":
		a, err := netip.ParseAddr(value)
		if err != nil || !a.Is4() {
			return datagram.VarBind{}, fmt.Errorf("var-bind %q: not an IPv4 address", s)
		}
		return datagram.IPAddress(oid, a), nil
	case "o":
		v, err := ber.ParseOID(strings.TrimPrefix(value, "."))
		if err != nil {
			return datagram.VarBind{}, fmt.Errorf("var-bind %q: %w", s, err)
		}
		return datagram.ObjectIdentifier(oid, v), nil
	case "n":
		return datagram.Null(oid), nil
	}
	return datagram.VarBind{}, fmt.Errorf("var-bind %q: unknown type %q", s, typ)
}
