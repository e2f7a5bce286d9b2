package datagram

import (
	"net/netip"

	"github.com/vpbank/snmp_trapmap/snmp/ber"
)

// ─────────────────────────────────────────────────────────────────────────────
// Well-known OIDs
// ─────────────────────────────────────────────────────────────────────────────

var (
	// OIDSysUpTime is sysUpTime.0, conventionally the first var-binding of an
	// SNMPv2 notification.
	OIDSysUpTime = ber.MustParseOID("1.3.6.1.2.1.1.3.0")

	// OIDSnmpTrapOID is snmpTrapOID.0, conventionally the second var-binding
	// of an SNMPv2 notification. Its value identifies the notification.
	OIDSnmpTrapOID = ber.MustParseOID("1.3.6.1.6.3.1.1.4.1.0")

	// OIDSnmpTrapEnterprise is snmpTrapEnterprise.0 (RFC 3584 §3.1).
	OIDSnmpTrapEnterprise = ber.MustParseOID("1.3.6.1.6.3.1.1.4.3.0")

	// OIDSnmpTraps is the prefix of the standard generic notifications.
	OIDSnmpTraps = ber.MustParseOID("1.3.6.1.6.3.1.1.5")
)

// TrapOID returns the notification identifier of d.
//
// For SNMPv1 Trap-PDUs it is derived per RFC 3584 §3.1: generic traps 0-5 map
// to 1.3.6.1.6.3.1.1.5.<generic+1>, enterprise-specific traps map to
// <enterprise>.0.<specific>. For every other PDU it is the value of the first
// snmpTrapOID.0 var-binding, provided that value is an OID.
func (d *Datagram) TrapOID() (ber.OID, bool) {
	if d.PDUType == Trap && d.V1Trap != nil {
		return d.V1Trap.TrapOID()
	}
	vb, ok := d.Find(OIDSnmpTrapOID)
	if !ok {
		return nil, false
	}
	return vb.Value.AsOID()
}

// TrapOID applies the RFC 3584 v1-to-v2 translation.
func (t *V1Trap) TrapOID() (ber.OID, bool) {
	if t.GenericTrap >= GenericColdStart && t.GenericTrap < GenericEnterpriseSpecific {
		return OIDSnmpTraps.Append(uint32(t.GenericTrap + 1)), true
	}
	if t.Enterprise.IsZero() || t.SpecificTrap < 0 || t.SpecificTrap > 0xffffffff {
		return nil, false
	}
	return t.Enterprise.Append(0, uint32(t.SpecificTrap)), true
}

// Uptime returns the agent uptime in hundredths of a second: the v1
// time-stamp field, or the sysUpTime.0 var-binding otherwise.
func (d *Datagram) Uptime() (uint32, bool) {
	if d.PDUType == Trap && d.V1Trap != nil {
		return d.V1Trap.TimeStamp, true
	}
	vb, ok := d.Find(OIDSysUpTime)
	if !ok {
		return 0, false
	}
	u, ok := vb.Value.AsUint()
	if !ok || u > 0xffffffff {
		return 0, false
	}
	return uint32(u), true
}

// Payload returns the var-bindings that follow snmpTrapOID.0, or all of them
// when there is no such binding. v1 traps carry no header bindings.
func (d *Datagram) Payload() []VarBind {
	if d.PDUType == Trap {
		return d.VarBinds
	}
	for i, vb := range d.VarBinds {
		if vb.OID.Equal(OIDSnmpTrapOID) {
			return d.VarBinds[i+1:]
		}
	}
	return d.VarBinds
}

// NewTrapV2 builds an SNMPv2c notification with the conventional
// sysUpTime.0 and snmpTrapOID.0 leading bindings.
func NewTrapV2(community string, requestID int32, uptime uint32, trapOID ber.OID, vbs ...VarBind) *Datagram {
	all := make([]VarBind, 0, len(vbs)+2)
	all = append(all,
		TimeTicks(OIDSysUpTime, uptime),
		ObjectIdentifier(OIDSnmpTrapOID, trapOID),
	)
	all = append(all, vbs...)
	return &Datagram{
		Header:    Header{Version: V2C, Community: community},
		PDUType:   SNMPv2Trap,
		RequestID: requestID,
		VarBinds:  all,
	}
}

// NewTrapV1 builds an SNMPv1 Trap-PDU.
func NewTrapV1(community string, enterprise ber.OID, agent netip.Addr, generic, specific int64, timestamp uint32, vbs ...VarBind) *Datagram {
	return &Datagram{
		Header:  Header{Version: V1, Community: community},
		PDUType: Trap,
		V1Trap: &V1Trap{
			Enterprise:   enterprise,
			AgentAddress: agent.Unmap(),
			GenericTrap:  generic,
			SpecificTrap: specific,
			TimeStamp:    timestamp,
		},
		VarBinds: vbs,
	}
}
