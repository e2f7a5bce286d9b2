// Package interop converts between datagram.Datagram and gosnmp's
// SnmpPacket, so that gosnmp can be used as the UDP engine (trap listener,
// SendTrap) while the rest of the pipeline works on the native model.
package interop

import (
	"fmt"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_trapmap/snmp/ber"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
)

// gosnmp encodes the PDU type as the full identifier octet.
const pduTagBase = 0xa0

// ToGoSNMP builds the gosnmp packet equivalent to d.
func ToGoSNMP(d *datagram.Datagram) (*gosnmp.SnmpPacket, error) {
	pkt := &gosnmp.SnmpPacket{
		Community: d.Header.Community,
		PDUType:   gosnmp.PDUType(pduTagBase + uint8(d.PDUType)),
		RequestID: uint32(d.RequestID),
	}
	switch d.Header.Version {
	case datagram.V1:
		pkt.Version = gosnmp.Version1
	case datagram.V2C:
		pkt.Version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("interop: %w: %d", datagram.ErrUnsupportedVersion, int(d.Header.Version))
	}

	switch d.PDUType {
	case datagram.Trap:
		if d.V1Trap == nil {
			return nil, fmt.Errorf("interop: trap PDU without v1 trap fields")
		}
		pkt.Enterprise = "." + d.V1Trap.Enterprise.String()
		pkt.AgentAddress = d.V1Trap.AgentAddress.String()
		pkt.GenericTrap = int(d.V1Trap.GenericTrap)
		pkt.SpecificTrap = int(d.V1Trap.SpecificTrap)
		pkt.Timestamp = uint(d.V1Trap.TimeStamp)
	case datagram.GetBulk:
		if d.ErrorStatus < 0 || d.ErrorStatus > math.MaxUint8 || d.ErrorIndex < 0 {
			return nil, fmt.Errorf("interop: get-bulk parameters %d/%d out of range", d.ErrorStatus, d.ErrorIndex)
		}
		pkt.NonRepeaters = uint8(d.ErrorStatus)
		pkt.MaxRepetitions = uint32(d.ErrorIndex)
	default:
		if d.ErrorStatus < 0 || d.ErrorStatus > math.MaxUint8 || d.ErrorIndex < 0 || d.ErrorIndex > math.MaxUint8 {
			return nil, fmt.Errorf("interop: error status/index %d/%d not representable", d.ErrorStatus, d.ErrorIndex)
		}
		pkt.Error = gosnmp.SNMPError(d.ErrorStatus)
		pkt.ErrorIndex = uint8(d.ErrorIndex)
	}

	pkt.Variables = make([]gosnmp.SnmpPDU, 0, len(d.VarBinds))
	for i, vb := range d.VarBinds {
		pdu, err := toPDU(vb)
		if err != nil {
			return nil, fmt.Errorf("interop: var-bind %d: %w", i, err)
		}
		pkt.Variables = append(pkt.Variables, pdu)
	}
	return pkt, nil
}

// Variables converts var-bindings alone, e.g. for gosnmp.SnmpTrap.
func Variables(vbs []datagram.VarBind) ([]gosnmp.SnmpPDU, error) {
	out := make([]gosnmp.SnmpPDU, 0, len(vbs))
	for i, vb := range vbs {
		pdu, err := toPDU(vb)
		if err != nil {
			return nil, fmt.Errorf("interop: var-bind %d: %w", i, err)
		}
		out = append(out, pdu)
	}
	return out, nil
}

func toPDU(vb datagram.VarBind) (gosnmp.SnmpPDU, error) {
	pdu := gosnmp.SnmpPDU{Name: "." + vb.OID.String()}
	mismatch := fmt.Errorf("%s value cannot be sent as %s", vb.Value.Kind(), vb.Tag)

	switch vb.Tag {
	case ber.TagInteger:
		i, ok := vb.Value.AsInt()
		if !ok || i < math.MinInt32 || i > math.MaxInt32 {
			return pdu, mismatch
		}
		pdu.Type, pdu.Value = gosnmp.Integer, int(i)
	case ber.TagOctetString, ber.TagOpaque:
		b, ok := vb.Value.Octets()
		if !ok {
			return pdu, mismatch
		}
		pdu.Type, pdu.Value = gosnmp.OctetString, b
		if vb.Tag == ber.TagOpaque {
			pdu.Type = gosnmp.Opaque
		}
	case ber.TagCounter32, ber.TagGauge32, ber.TagTimeTicks, ber.TagUInteger32:
		u, ok := vb.Value.AsUint()
		if !ok || u > math.MaxUint32 {
			return pdu, mismatch
		}
		pdu.Value = uint32(u)
		switch vb.Tag {
		case ber.TagCounter32:
			pdu.Type = gosnmp.Counter32
		case ber.TagGauge32:
			pdu.Type = gosnmp.Gauge32
		case ber.TagUInteger32:
			pdu.Type = gosnmp.Uinteger32
		default:
			pdu.Type = gosnmp.TimeTicks
		}
	case ber.TagCounter64:
		u, ok := vb.Value.AsUint()
		if !ok {
			return pdu, mismatch
		}
		pdu.Type, pdu.Value = gosnmp.Counter64, u
	case ber.TagObjectIdentifier:
		o, ok := vb.Value.AsOID()
		if !ok {
			return pdu, mismatch
		}
		pdu.Type, pdu.Value = gosnmp.ObjectIdentifier, "."+o.String()
	case ber.TagIPAddress:
		ip, ok := vb.Value.AsIP()
		if !ok {
			return pdu, mismatch
		}
		pdu.Type, pdu.Value = gosnmp.IPAddress, ip.String()
	case ber.TagNull:
		pdu.Type = gosnmp.Null
	case ber.TagNoSuchObject:
		pdu.Type = gosnmp.NoSuchObject
	case ber.TagNoSuchInstance:
		pdu.Type = gosnmp.NoSuchInstance
	case ber.TagEndOfMibView:
		pdu.Type = gosnmp.EndOfMibView
	default:
		return pdu, fmt.Errorf("tag %s has no gosnmp equivalent", vb.Tag)
	}
	return pdu, nil
}

// FromGoSNMP converts a packet decoded by gosnmp, typically delivered by
// gosnmp.TrapListener, into a Datagram with the given receive metadata.
func FromGoSNMP(pkt *gosnmp.SnmpPacket, source string, received time.Time) (*datagram.Datagram, error) {
	if pkt == nil {
		return nil, fmt.Errorf("interop: nil packet")
	}
	d := &datagram.Datagram{
		ReceivedTime:  received,
		SourceAddress: source,
		Header:        datagram.Header{Community: pkt.Community},
	}
	switch pkt.Version {
	case gosnmp.Version1:
		d.Header.Version = datagram.V1
	case gosnmp.Version2c:
		d.Header.Version = datagram.V2C
	default:
		return nil, fmt.Errorf("interop: %w: %v", datagram.ErrUnsupportedVersion, pkt.Version)
	}

	if pkt.PDUType < pduTagBase || pkt.PDUType > pduTagBase+gosnmp.PDUType(datagram.Report) {
		return nil, fmt.Errorf("interop: unsupported PDU type 0x%02x", byte(pkt.PDUType))
	}
	d.PDUType = datagram.PDUType(pkt.PDUType - pduTagBase)

	switch d.PDUType {
	case datagram.Trap:
		enterprise, err := ber.ParseOID(pkt.Enterprise)
		if err != nil {
			return nil, fmt.Errorf("interop: enterprise: %w", err)
		}
		agent, err := netip.ParseAddr(pkt.AgentAddress)
		if err != nil {
			return nil, fmt.Errorf("interop: agent address: %w", err)
		}
		d.V1Trap = &datagram.V1Trap{
			Enterprise:   enterprise,
			AgentAddress: agent.Unmap(),
			GenericTrap:  int64(pkt.GenericTrap),
			SpecificTrap: int64(pkt.SpecificTrap),
			TimeStamp:    uint32(pkt.Timestamp),
		}
	case datagram.GetBulk:
		d.RequestID = int32(pkt.RequestID)
		d.ErrorStatus = datagram.ErrorStatus(pkt.NonRepeaters)
		d.ErrorIndex = int32(pkt.MaxRepetitions)
	default:
		d.RequestID = int32(pkt.RequestID)
		d.ErrorStatus = datagram.ErrorStatus(pkt.Error)
		d.ErrorIndex = int32(pkt.ErrorIndex)
	}

	for i, pdu := range pkt.Variables {
		vb, err := fromPDU(pdu)
		if err != nil {
			return nil, fmt.Errorf("interop: var-bind %d (%s): %w", i, pdu.Name, err)
		}
		d.VarBinds = append(d.VarBinds, vb)
	}
	return d, nil
}

func fromPDU(pdu gosnmp.SnmpPDU) (datagram.VarBind, error) {
	oid, err := ber.ParseOID(pdu.Name)
	if err != nil {
		return datagram.VarBind{}, err
	}
	switch pdu.Type {
	case gosnmp.Integer:
		return datagram.Integer(oid, gosnmp.ToBigInt(pdu.Value).Int64()), nil
	case gosnmp.OctetString, gosnmp.Opaque:
		b, ok := pdu.Value.([]byte)
		if !ok {
			return datagram.VarBind{}, fmt.Errorf("unexpected %T for %s", pdu.Value, pdu.Type)
		}
		if pdu.Type == gosnmp.Opaque {
			return datagram.Opaque(oid, b), nil
		}
		return datagram.OctetString(oid, b), nil
	case gosnmp.Counter32:
		return datagram.Counter32(oid, uint32(gosnmp.ToBigInt(pdu.Value).Uint64())), nil
	case gosnmp.Gauge32:
		return datagram.Gauge32(oid, uint32(gosnmp.ToBigInt(pdu.Value).Uint64())), nil
	case gosnmp.Uinteger32:
		return datagram.UInteger32(oid, uint32(gosnmp.ToBigInt(pdu.Value).Uint64())), nil
	case gosnmp.TimeTicks:
		return datagram.TimeTicks(oid, uint32(gosnmp.ToBigInt(pdu.Value).Uint64())), nil
	case gosnmp.Counter64:
		return datagram.Counter64(oid, gosnmp.ToBigInt(pdu.Value).Uint64()), nil
	case gosnmp.ObjectIdentifier:
		s, _ := pdu.Value.(string)
		v, err := ber.ParseOID(strings.TrimSpace(s))
		if err != nil {
			return datagram.VarBind{}, err
		}
		return datagram.ObjectIdentifier(oid, v), nil
	case gosnmp.IPAddress:
		s, _ := pdu.Value.(string)
		ip, err := netip.ParseAddr(s)
		if err != nil {
			return datagram.VarBind{}, err
		}
		return datagram.IPAddress(oid, ip), nil
	case gosnmp.Null:
		return datagram.Null(oid), nil
	case gosnmp.NoSuchObject:
		return datagram.VarBind{OID: oid, Tag: ber.TagNoSuchObject}, nil
	case gosnmp.NoSuchInstance:
		return datagram.VarBind{OID: oid, Tag: ber.TagNoSuchInstance}, nil
	case gosnmp.EndOfMibView:
		return datagram.VarBind{OID: oid, Tag: ber.TagEndOfMibView}, nil
	default:
		return datagram.VarBind{}, fmt.Errorf("unsupported type %s", pdu.Type)
	}
}
