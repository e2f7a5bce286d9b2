package datagram

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vpbank/snmp_trapmap/snmp/ber"
)

// Encode serialises d as
//
//	SEQUENCE { version INTEGER, community OCTET STRING, PDU }
//
// where PDU is a context-constructed value tagged with PDUType. Var-bindings
// are written in slice order.
func (d *Datagram) Encode() ([]byte, error) {
	if d.Header.Version != V1 && d.Header.Version != V2C {
		return nil, fmt.Errorf("datagram: encode: %w: %d", ErrUnsupportedVersion, int(d.Header.Version))
	}
	if d.PDUType > Report {
		return nil, fmt.Errorf("datagram: encode: unknown PDU type %d", uint8(d.PDUType))
	}

	pdu, err := d.appendPDUBody(nil)
	if err != nil {
		return nil, fmt.Errorf("datagram: encode: %w", err)
	}

	msg := make([]byte, 0, len(pdu)+len(d.Header.Community)+16)
	msg, _ = ber.AppendTLV(msg, ber.TagInteger, ber.EncodeInteger(int64(d.Header.Version)))
	msg, _ = ber.AppendTLV(msg, ber.TagOctetString, []byte(d.Header.Community))
	if msg, err = ber.AppendTLV(msg, ber.ContextTag(uint32(d.PDUType)), pdu); err != nil {
		return nil, fmt.Errorf("datagram: encode: %w", err)
	}
	return ber.AppendTLV(nil, ber.TagSequence, msg)
}

func (d *Datagram) appendPDUBody(dst []byte) ([]byte, error) {
	if d.PDUType == Trap {
		t := d.V1Trap
		if t == nil {
			return dst, errors.New("trap PDU without v1 trap fields")
		}
		enterprise, err := ber.EncodeOID(t.Enterprise)
		if err != nil {
			return dst, fmt.Errorf("enterprise: %w", err)
		}
		dst, _ = ber.AppendTLV(dst, ber.TagObjectIdentifier, enterprise)
		if dst, err = ber.EncodeValue(dst, ber.TagIPAddress, ber.IP(t.AgentAddress)); err != nil {
			return dst, fmt.Errorf("agent-addr: %w", err)
		}
		dst, _ = ber.AppendTLV(dst, ber.TagInteger, ber.EncodeInteger(t.GenericTrap))
		dst, _ = ber.AppendTLV(dst, ber.TagInteger, ber.EncodeInteger(t.SpecificTrap))
		dst, _ = ber.AppendTLV(dst, ber.TagTimeTicks, ber.EncodeUnsigned(uint64(t.TimeStamp)))
	} else {
		if d.V1Trap != nil {
			return dst, fmt.Errorf("v1 trap fields set on %s PDU", d.PDUType)
		}
		dst, _ = ber.AppendTLV(dst, ber.TagInteger, ber.EncodeInteger(int64(d.RequestID)))
		dst, _ = ber.AppendTLV(dst, ber.TagInteger, ber.EncodeInteger(int64(d.ErrorStatus)))
		dst, _ = ber.AppendTLV(dst, ber.TagInteger, ber.EncodeInteger(int64(d.ErrorIndex)))
	}

	var list []byte
	for i, vb := range d.VarBinds {
		var err error
		if list, err = appendVarBind(list, vb); err != nil {
			return dst, fmt.Errorf("var-bind %d (%s): %w", i, vb.OID, err)
		}
	}
	return ber.AppendTLV(dst, ber.TagSequence, list)
}

// Decode parses one SNMP message. Any structural problem is returned as one
// of the ber error types wrapped with context; trailing bytes after the
// message are rejected.
func Decode(b []byte) (*Datagram, error) {
	d, err := decode(b)
	if err != nil {
		return nil, fmt.Errorf("datagram: decode: %w", err)
	}
	return d, nil
}

// DecodeFrom is Decode followed by filling the receive metadata.
func DecodeFrom(b []byte, source string, received time.Time) (*Datagram, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	d.SourceAddress = source
	d.ReceivedTime = received
	return d, nil
}

func decode(b []byte) (*Datagram, error) {
	r := ber.NewReader(b)
	msg, err := r.Expect(ber.TagSequence, "message")
	if err != nil {
		return nil, err
	}
	if !r.Empty() {
		return nil, &ber.SyntaxError{Offset: r.Offset(), Msg: "trailing bytes after message"}
	}

	mr := msg.Reader()
	version, err := mr.ReadInteger("version")
	if err != nil {
		return nil, err
	}
	if version != int64(V1) && version != int64(V2C) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	community, err := mr.ReadOctetString("community")
	if err != nil {
		return nil, err
	}

	pduTag, err := mr.PeekTag()
	if err != nil {
		return nil, err
	}
	if pduTag.Class != ber.ClassContext || pduTag.Construct != ber.Constructed || pduTag.Number > uint32(Report) {
		return nil, &ber.UnexpectedTagError{
			Offset:   mr.Offset(),
			Position: "pdu",
			Expected: ber.ContextTag(uint32(SNMPv2Trap)),
			Actual:   pduTag,
		}
	}
	pduEl, err := mr.ReadElement()
	if err != nil {
		return nil, err
	}
	if !mr.Empty() {
		return nil, &ber.SyntaxError{Offset: mr.Offset(), Msg: "trailing bytes after pdu"}
	}

	d := &Datagram{
		Header:  Header{Version: Version(version), Community: string(community)},
		PDUType: PDUType(pduTag.Number),
	}

	pr := pduEl.Reader()
	if d.PDUType == Trap {
		if d.V1Trap, err = readV1Trap(pr); err != nil {
			return nil, err
		}
	} else {
		if d.RequestID, err = readInt32(pr, "request-id"); err != nil {
			return nil, err
		}
		status, err := readInt32(pr, "error-status")
		if err != nil {
			return nil, err
		}
		d.ErrorStatus = ErrorStatus(status)
		if d.ErrorIndex, err = readInt32(pr, "error-index"); err != nil {
			return nil, err
		}
	}

	list, err := pr.Expect(ber.TagSequence, "variable-bindings")
	if err != nil {
		return nil, err
	}
	if !pr.Empty() {
		return nil, &ber.SyntaxError{Offset: pr.Offset(), Msg: "trailing bytes in pdu"}
	}
	lr := list.Reader()
	for !lr.Empty() {
		vb, err := readVarBind(lr)
		if err != nil {
			return nil, err
		}
		d.VarBinds = append(d.VarBinds, vb)
	}
	return d, nil
}

func readInt32(r *ber.Reader, position string) (int32, error) {
	off := r.Offset()
	v, err := r.ReadInteger(position)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, &ber.SyntaxError{Offset: off, Msg: position + " out of 32-bit range"}
	}
	return int32(v), nil
}

func readV1Trap(r *ber.Reader) (*V1Trap, error) {
	var (
		t   V1Trap
		err error
	)
	if t.Enterprise, err = r.ReadOID("enterprise"); err != nil {
		return nil, err
	}
	agent, err := r.Expect(ber.TagIPAddress, "agent-addr")
	if err != nil {
		return nil, err
	}
	addr, err := ber.DecodeValue(agent)
	if err != nil {
		return nil, err
	}
	t.AgentAddress, _ = addr.AsIP()
	if t.GenericTrap, err = r.ReadInteger("generic-trap"); err != nil {
		return nil, err
	}
	if t.SpecificTrap, err = r.ReadInteger("specific-trap"); err != nil {
		return nil, err
	}
	ts, err := r.Expect(ber.TagTimeTicks, "time-stamp")
	if err != nil {
		return nil, err
	}
	ticks, err := ber.DecodeValue(ts)
	if err != nil {
		return nil, err
	}
	u, _ := ticks.AsUint()
	t.TimeStamp = uint32(u)
	return &t, nil
}
