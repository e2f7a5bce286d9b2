// Package trap renders decoded trap datagrams as the generic models.SNMPTrap.
// It is used for traps whose OID no registered type claims, and covers the
// header differences between v1 Trap-PDUs and v2c notifications. Socket
// handling lives in the trapreceiver package.
package trap

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/vpbank/snmp_trapmap/models"
	"github.com/vpbank/snmp_trapmap/snmp/ber"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
)

// ─────────────────────────────────────────────────────────────────────────────
// Parse — main entry point
// ─────────────────────────────────────────────────────────────────────────────

// Parse converts dg into a models.SNMPTrap. Informs are treated like traps;
// acknowledging them is the receiver's job. Exception values (noSuchObject
// and friends) are dropped from the payload.
func Parse(dg *datagram.Datagram) (models.SNMPTrap, error) {
	if dg == nil {
		return models.SNMPTrap{}, errors.New("trap: nil datagram")
	}
	if !dg.PDUType.IsNotification() {
		return models.SNMPTrap{}, fmt.Errorf("trap: %s is not a notification", dg.PDUType)
	}

	ts := dg.ReceivedTime
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	trap := models.SNMPTrap{
		Timestamp: ts,
		Device:    deviceFromDatagram(dg),
		TrapInfo:  trapInfo(dg),
		Varbinds:  convertVarbinds(dg.Payload()),
	}
	return trap, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Header extraction
// ─────────────────────────────────────────────────────────────────────────────

// deviceFromDatagram prefers the v1 agent-address field over the UDP source,
// which may be a relay.
func deviceFromDatagram(dg *datagram.Datagram) models.Device {
	ip := hostOnly(dg.SourceAddress)
	if dg.V1Trap != nil && dg.V1Trap.AgentAddress.IsValid() && !dg.V1Trap.AgentAddress.IsUnspecified() {
		ip = dg.V1Trap.AgentAddress.String()
	}
	return models.Device{
		IPAddress:   ip,
		Community:   dg.Header.Community,
		SNMPVersion: dg.Header.Version.String(),
	}
}

func trapInfo(dg *datagram.Datagram) models.TrapInfo {
	info := models.TrapInfo{
		PDUType: dg.PDUType.String(),
	}
	if oid, ok := dg.TrapOID(); ok {
		info.TrapOID = oid.String()
	}
	if up, ok := dg.Uptime(); ok {
		info.Uptime = up
	}
	if v1 := dg.V1Trap; v1 != nil {
		info.EnterpriseOID = v1.Enterprise.String()
		if v1.AgentAddress.IsValid() {
			info.AgentAddress = v1.AgentAddress.String()
		}
		info.GenericTrap = v1.GenericTrap
		info.SpecificTrap = v1.SpecificTrap
	} else {
		info.RequestID = dg.RequestID
	}
	return info
}

// ─────────────────────────────────────────────────────────────────────────────
// Varbind conversion
// ─────────────────────────────────────────────────────────────────────────────

func convertVarbinds(vbs []datagram.VarBind) []models.Varbind {
	out := make([]models.Varbind, 0, len(vbs))
	for _, vb := range vbs {
		if vb.Tag.IsException() {
			continue
		}
		out = append(out, models.Varbind{
			OID:   vb.OID.String(),
			Type:  tagName(vb.Tag),
			Value: convertValue(vb.Value),
		})
	}
	return out
}

// convertValue renders octet strings as text when printable; OIDs and
// addresses become strings.
func convertValue(v ber.Value) any {
	switch v.Kind() {
	case ber.KindBytes:
		b, _ := v.AsBytes()
		if isPrintable(b) {
			return string(b)
		}
		return b
	case ber.KindOID, ber.KindIPAddress:
		return v.String()
	default:
		return v.Interface()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// hostOnly strips a port from "ip:port".
func hostOnly(addr string) string {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().String()
	}
	return addr
}

// isPrintable returns true if all bytes in b are printable ASCII (0x20–0x7e)
// or common whitespace.
func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
		if c > 0x7e {
			return false
		}
	}
	return true
}

// tagName returns the SMI type name for a var-binding tag.
func tagName(t ber.TagInfo) string {
	switch t {
	case ber.TagInteger:
		return "Integer"
	case ber.TagOctetString:
		return "OctetString"
	case ber.TagNull:
		return "Null"
	case ber.TagObjectIdentifier:
		return "ObjectIdentifier"
	case ber.TagIPAddress:
		return "IpAddress"
	case ber.TagCounter32:
		return "Counter32"
	case ber.TagGauge32:
		return "Gauge32"
	case ber.TagTimeTicks:
		return "TimeTicks"
	case ber.TagOpaque:
		return "Opaque"
	case ber.TagCounter64:
		return "Counter64"
	case ber.TagUInteger32:
		return "UInteger32"
	default:
		return t.String()
	}
}
