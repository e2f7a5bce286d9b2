package ber

import (
	"bytes"
	"math"
	"net/netip"
)

// Element is one decoded TLV. Content aliases the buffer being read.
type Element struct {
	Tag     TagInfo
	Content []byte
	// Offset of the first content byte, relative to the outermost buffer.
	Offset int
}

// Reader walks a sequence of TLVs. Every failure is reported as one of the
// typed errors in this package with an absolute offset; the Reader never
// panics on malformed input.
type Reader struct {
	data []byte
	off  int
	base int
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader { return &Reader{data: b} }

// Reader returns a Reader over the element's contents that keeps reporting
// offsets relative to the outermost buffer.
func (e Element) Reader() *Reader { return &Reader{data: e.Content, base: e.Offset} }

// Offset returns the absolute position of the next unread byte.
func (r *Reader) Offset() int { return r.base + r.off }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.off }

// Empty reports whether every byte has been consumed.
func (r *Reader) Empty() bool { return r.off >= len(r.data) }

// PeekTag decodes the next identifier octet without consuming it.
func (r *Reader) PeekTag() (TagInfo, error) {
	if r.Empty() {
		return TagInfo{}, &TruncatedDataError{Offset: r.Offset(), Need: 1, Have: 0}
	}
	t, err := ParseTagByte(r.data[r.off])
	if err != nil {
		return t, &SyntaxError{Offset: r.Offset(), Msg: err.Error()}
	}
	return t, nil
}

// ReadElement consumes the next TLV.
func (r *Reader) ReadElement() (Element, error) {
	tag, err := r.PeekTag()
	if err != nil {
		return Element{}, err
	}
	pos := r.off + 1
	n, pos, err := r.readLength(pos)
	if err != nil {
		return Element{}, err
	}
	if have := len(r.data) - pos; n > have {
		return Element{}, &TruncatedDataError{Offset: r.base + pos, Need: n, Have: have}
	}
	e := Element{Tag: tag, Content: r.data[pos : pos+n], Offset: r.base + pos}
	r.off = pos + n
	return e, nil
}

func (r *Reader) readLength(pos int) (int, int, error) {
	if pos >= len(r.data) {
		return 0, pos, &TruncatedDataError{Offset: r.base + pos, Need: 1, Have: 0}
	}
	b := r.data[pos]
	pos++
	if b < 0x80 {
		return int(b), pos, nil
	}
	if b == 0x80 {
		return 0, pos, &SyntaxError{Offset: r.base + pos - 1, Msg: "indefinite length is not allowed"}
	}
	count := int(b & 0x7f)
	if count > 4 {
		return 0, pos, &SyntaxError{Offset: r.base + pos - 1, Msg: "length field too long"}
	}
	if have := len(r.data) - pos; count > have {
		return 0, pos, &TruncatedDataError{Offset: r.base + pos, Need: count, Have: have}
	}
	var n uint64
	for _, c := range r.data[pos : pos+count] {
		n = n<<8 | uint64(c)
	}
	pos += count
	if n > math.MaxInt32 {
		return 0, pos, &SyntaxError{Offset: r.base + pos - count - 1, Msg: "length out of range"}
	}
	return int(n), pos, nil
}

// Expect consumes the next TLV and checks it carries tag. position names the
// structural slot for diagnostics, e.g. "version" or "request-id". The tag is
// checked before the length so that a mismatch is reported even when the
// rest of the buffer is garbage.
func (r *Reader) Expect(tag TagInfo, position string) (Element, error) {
	got, err := r.PeekTag()
	if err != nil {
		return Element{}, err
	}
	if got != tag {
		return Element{}, &UnexpectedTagError{Offset: r.Offset(), Position: position, Expected: tag, Actual: got}
	}
	return r.ReadElement()
}

// ReadInteger consumes an INTEGER.
func (r *Reader) ReadInteger(position string) (int64, error) {
	e, err := r.Expect(TagInteger, position)
	if err != nil {
		return 0, err
	}
	return DecodeInteger(e.Content, e.Offset)
}

// ReadOctetString consumes an OCTET STRING and returns a copy of its contents.
func (r *Reader) ReadOctetString(position string) ([]byte, error) {
	e, err := r.Expect(TagOctetString, position)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(e.Content), nil
}

// ReadOID consumes an OBJECT IDENTIFIER.
func (r *Reader) ReadOID(position string) (OID, error) {
	e, err := r.Expect(TagObjectIdentifier, position)
	if err != nil {
		return nil, err
	}
	return DecodeOID(e.Content, e.Offset)
}

// ReadValue consumes any SNMP value and returns it with the tag it was
// encoded under.
func (r *Reader) ReadValue() (TagInfo, Value, error) {
	e, err := r.ReadElement()
	if err != nil {
		return TagInfo{}, Value{}, err
	}
	v, err := DecodeValue(e)
	return e.Tag, v, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Content decoders
// ─────────────────────────────────────────────────────────────────────────────

// DecodeValue interprets the contents of e according to its tag. Unknown
// tags are kept as raw octets.
func DecodeValue(e Element) (Value, error) {
	switch e.Tag {
	case TagInteger:
		i, err := DecodeInteger(e.Content, e.Offset)
		return Int(i), err

	case TagCounter32, TagGauge32, TagTimeTicks, TagUInteger32:
		u, err := DecodeUnsigned(e.Content, e.Offset)
		if err == nil && u > math.MaxUint32 {
			err = &SyntaxError{Offset: e.Offset, Msg: e.Tag.String() + " exceeds 32 bits"}
		}
		return Uint(u), err

	case TagCounter64:
		u, err := DecodeUnsigned(e.Content, e.Offset)
		return Uint(u), err

	case TagNull, TagNoSuchObject, TagNoSuchInstance, TagEndOfMibView:
		return Null(), nil

	case TagObjectIdentifier:
		o, err := DecodeOID(e.Content, e.Offset)
		return ObjectID(o), err

	case TagIPAddress:
		if len(e.Content) != 4 {
			return Value{}, &SyntaxError{Offset: e.Offset, Msg: "IpAddress must be 4 bytes"}
		}
		return IP(netip.AddrFrom4([4]byte(e.Content))), nil

	default:
		// OCTET STRING, Opaque and anything vendor specific.
		return Bytes(bytes.Clone(e.Content)), nil
	}
}

// DecodeInteger sign-extends a two's-complement INTEGER of at most 8 bytes.
// off is used only for error reporting.
func DecodeInteger(b []byte, off int) (int64, error) {
	switch {
	case len(b) == 0:
		return 0, &SyntaxError{Offset: off, Msg: "empty INTEGER"}
	case len(b) > 8:
		return 0, &SyntaxError{Offset: off, Msg: "INTEGER too large"}
	}
	v := int64(int8(b[0]))
	for _, c := range b[1:] {
		v = v<<8 | int64(c)
	}
	return v, nil
}

// DecodeUnsigned reads a big-endian unsigned value of at most 64 bits; a
// nine-byte encoding is only valid with a leading 0x00 pad.
func DecodeUnsigned(b []byte, off int) (uint64, error) {
	switch {
	case len(b) == 0:
		return 0, &SyntaxError{Offset: off, Msg: "empty unsigned integer"}
	case len(b) > 9, len(b) == 9 && b[0] != 0:
		return 0, &SyntaxError{Offset: off, Msg: "unsigned integer exceeds 64 bits"}
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// DecodeOID reverses EncodeOID. A final byte with the continuation bit set
// and subidentifiers that overflow 32 bits are syntax errors.
func DecodeOID(b []byte, off int) (OID, error) {
	if len(b) == 0 {
		return nil, &SyntaxError{Offset: off, Msg: "empty OBJECT IDENTIFIER"}
	}
	oid := make(OID, 0, len(b)+1)
	var sub uint64
	first := true
	for i, c := range b {
		if sub > math.MaxUint64>>7 {
			return nil, &SyntaxError{Offset: off + i, Msg: "subidentifier overflow"}
		}
		sub = sub<<7 | uint64(c&0x7f)
		if c&0x80 != 0 {
			continue
		}
		if first {
			first = false
			switch {
			case sub < 40:
				oid = append(oid, 0, uint32(sub))
			case sub < 80:
				oid = append(oid, 1, uint32(sub-40))
			default:
				if sub-80 > math.MaxUint32 {
					return nil, &SyntaxError{Offset: off + i, Msg: "subidentifier overflow"}
				}
				oid = append(oid, 2, uint32(sub-80))
			}
		} else {
			if sub > math.MaxUint32 {
				return nil, &SyntaxError{Offset: off + i, Msg: "subidentifier overflow"}
			}
			oid = append(oid, uint32(sub))
		}
		sub = 0
	}
	if b[len(b)-1]&0x80 != 0 {
		return nil, &SyntaxError{Offset: off + len(b) - 1, Msg: "dangling continuation bit in OBJECT IDENTIFIER"}
	}
	return oid, nil
}
