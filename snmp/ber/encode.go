package ber

import "math"

// AppendLength appends a definite-length field: short form below 128,
// otherwise 0x80|n followed by n big-endian length bytes.
func AppendLength(dst []byte, n int) []byte {
	if n < 0x80 {
		return append(dst, byte(n))
	}
	var tmp [8]byte
	i := len(tmp)
	for x := uint64(n); x > 0; x >>= 8 {
		i--
		tmp[i] = byte(x)
	}
	dst = append(dst, 0x80|byte(len(tmp)-i))
	return append(dst, tmp[i:]...)
}

// AppendTLV appends identifier, length and contents.
func AppendTLV(dst []byte, tag TagInfo, content []byte) ([]byte, error) {
	b, err := tag.Byte()
	if err != nil {
		return dst, err
	}
	dst = append(dst, b)
	dst = AppendLength(dst, len(content))
	return append(dst, content...), nil
}

// EncodeInteger returns the minimal two's-complement big-endian contents of
// an INTEGER.
func EncodeInteger(v int64) []byte {
	n := 1
	for x := v; x > 127 || x < -128; x >>= 8 {
		n++
	}
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// EncodeUnsigned returns the minimal big-endian contents of Counter32,
// Gauge32, TimeTicks or Counter64, with a 0x00 pad when the leading byte has
// its high bit set so that an INTEGER reader does not see a negative number.
func EncodeUnsigned(v uint64) []byte {
	n := 1
	for x := v; x > 0xff; x >>= 8 {
		n++
	}
	pad := 0
	if byte(v>>(8*(n-1)))&0x80 != 0 {
		pad = 1
	}
	out := make([]byte, n+pad)
	for i := len(out) - 1; i >= pad; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// EncodeOID returns the contents of an OBJECT IDENTIFIER. The first two arcs
// are folded into 40*X+Y; every subidentifier is written base-128, most
// significant group first, with the continuation bit on all but the last.
func EncodeOID(o OID) ([]byte, error) {
	if len(o) < 2 {
		return nil, &EncodeError{Tag: TagObjectIdentifier, Kind: KindOID, Reason: "object identifier " + o.String() + " has fewer than two arcs"}
	}
	if o[0] > 2 || (o[0] < 2 && o[1] >= 40) {
		return nil, &EncodeError{Tag: TagObjectIdentifier, Kind: KindOID, Reason: "invalid leading arcs in " + o.String()}
	}
	out := make([]byte, 0, len(o)+4)
	out = appendBase128(out, uint64(o[0])*40+uint64(o[1]))
	for _, arc := range o[2:] {
		out = appendBase128(out, uint64(arc))
	}
	return out, nil
}

func appendBase128(dst []byte, v uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7f)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7f) | 0x80
	}
	return append(dst, tmp[i:]...)
}

// EncodeValue writes v as a complete TLV under tag. The value kind must fit
// the tag: integers under INTEGER, unsigned values under the counter/gauge
// family (32-bit ones range-checked), octets under OCTET STRING and Opaque,
// and so on. Octets under an unrecognised tag are written verbatim, which
// lets var-bindings with vendor tags survive a decode/encode cycle.
func EncodeValue(dst []byte, tag TagInfo, v Value) ([]byte, error) {
	mismatch := func(reason string) error {
		return &EncodeError{Tag: tag, Kind: v.kind, Reason: reason}
	}

	var content []byte
	switch tag {
	case TagInteger:
		i, ok := v.AsInt()
		if !ok {
			return dst, mismatch("")
		}
		content = EncodeInteger(i)

	case TagCounter32, TagGauge32, TagTimeTicks, TagUInteger32:
		u, ok := v.AsUint()
		if !ok {
			return dst, mismatch("")
		}
		if u > math.MaxUint32 {
			return dst, mismatch("value exceeds 32 bits")
		}
		content = EncodeUnsigned(u)

	case TagCounter64:
		u, ok := v.AsUint()
		if !ok {
			return dst, mismatch("")
		}
		content = EncodeUnsigned(u)

	case TagOctetString, TagOpaque:
		b, ok := v.Octets()
		if !ok {
			return dst, mismatch("")
		}
		content = b

	case TagNull, TagNoSuchObject, TagNoSuchInstance, TagEndOfMibView:
		if !v.IsNull() {
			return dst, mismatch("")
		}

	case TagObjectIdentifier:
		o, ok := v.AsOID()
		if !ok {
			return dst, mismatch("")
		}
		var err error
		if content, err = EncodeOID(o); err != nil {
			return dst, err
		}

	case TagIPAddress:
		ip, ok := v.AsIP()
		if !ok {
			return dst, mismatch("")
		}
		ip = ip.Unmap()
		if !ip.Is4() {
			return dst, mismatch("IpAddress must be IPv4")
		}
		a := ip.As4()
		content = a[:]

	default:
		b, ok := v.Octets()
		if !ok {
			return dst, mismatch("unrecognised tag carries raw octets only")
		}
		content = b
	}
	return AppendTLV(dst, tag, content)
}
