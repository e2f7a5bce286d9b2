package datagram

import (
	"encoding/json"
	"net/netip"

	"github.com/vpbank/snmp_trapmap/snmp/ber"
)

// VarBind is one OID/value pair. Tag records the wire type the value is (or
// was) encoded under, so a Counter32 and a Gauge32 holding the same number
// stay distinguishable.
type VarBind struct {
	OID   ber.OID
	Value ber.Value
	Tag   ber.TagInfo
}

func Integer(oid ber.OID, v int64) VarBind {
	return VarBind{OID: oid, Value: ber.Int(v), Tag: ber.TagInteger}
}

func OctetString(oid ber.OID, v []byte) VarBind {
	return VarBind{OID: oid, Value: ber.Bytes(v), Tag: ber.TagOctetString}
}

// Text is an OCTET STRING holding a display string.
func Text(oid ber.OID, v string) VarBind {
	return VarBind{OID: oid, Value: ber.Str(v), Tag: ber.TagOctetString}
}

func Counter32(oid ber.OID, v uint32) VarBind {
	return VarBind{OID: oid, Value: ber.Uint(uint64(v)), Tag: ber.TagCounter32}
}

func Gauge32(oid ber.OID, v uint32) VarBind {
	return VarBind{OID: oid, Value: ber.Uint(uint64(v)), Tag: ber.TagGauge32}
}

func UInteger32(oid ber.OID, v uint32) VarBind {
	return VarBind{OID: oid, Value: ber.Uint(uint64(v)), Tag: ber.TagUInteger32}
}

func TimeTicks(oid ber.OID, v uint32) VarBind {
	return VarBind{OID: oid, Value: ber.Uint(uint64(v)), Tag: ber.TagTimeTicks}
}

func Counter64(oid ber.OID, v uint64) VarBind {
	return VarBind{OID: oid, Value: ber.Uint(v), Tag: ber.TagCounter64}
}

func ObjectIdentifier(oid ber.OID, v ber.OID) VarBind {
	return VarBind{OID: oid, Value: ber.ObjectID(v), Tag: ber.TagObjectIdentifier}
}

// IPAddress stores the unmapped form of v; the wire type only carries IPv4.
func IPAddress(oid ber.OID, v netip.Addr) VarBind {
	return VarBind{OID: oid, Value: ber.IP(v.Unmap()), Tag: ber.TagIPAddress}
}

func Opaque(oid ber.OID, v []byte) VarBind {
	return VarBind{OID: oid, Value: ber.Bytes(v), Tag: ber.TagOpaque}
}

func Null(oid ber.OID) VarBind {
	return VarBind{OID: oid, Value: ber.Null(), Tag: ber.TagNull}
}

// Equal is structural over all three fields.
func (vb VarBind) Equal(o VarBind) bool {
	return vb.OID.Equal(o.OID) && vb.Tag == o.Tag && vb.Value.Equal(o.Value)
}

func (vb VarBind) String() string {
	return vb.OID.String() + " = " + vb.Tag.String() + ": " + vb.Value.String()
}

// MarshalJSON renders {"oid", "type", "value"}.
func (vb VarBind) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OID   string    `json:"oid"`
		Type  string    `json:"type"`
		Value ber.Value `json:"value"`
	}{vb.OID.String(), vb.Tag.String(), vb.Value})
}

func appendVarBind(dst []byte, vb VarBind) ([]byte, error) {
	name, err := ber.EncodeOID(vb.OID)
	if err != nil {
		return dst, err
	}
	body, err := ber.AppendTLV(nil, ber.TagObjectIdentifier, name)
	if err != nil {
		return dst, err
	}
	if body, err = ber.EncodeValue(body, vb.Tag, vb.Value); err != nil {
		return dst, err
	}
	return ber.AppendTLV(dst, ber.TagSequence, body)
}

func readVarBind(r *ber.Reader) (VarBind, error) {
	seq, err := r.Expect(ber.TagSequence, "var-bind")
	if err != nil {
		return VarBind{}, err
	}
	br := seq.Reader()
	oid, err := br.ReadOID("var-bind name")
	if err != nil {
		return VarBind{}, err
	}
	tag, v, err := br.ReadValue()
	if err != nil {
		return VarBind{}, err
	}
	if !br.Empty() {
		return VarBind{}, &ber.SyntaxError{Offset: br.Offset(), Msg: "trailing bytes in var-bind"}
	}
	return VarBind{OID: oid, Value: v, Tag: tag}, nil
}
