// Package datagram models a complete SNMP v1/v2c message, the header, the PDU
// and its ordered variable bindings, and converts it to and from its BER wire
// form using package ber. The codec preserves everything on the wire,
// including error-status and error-index on PDU types where they carry no
// meaning and var-binding order.
package datagram

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/vpbank/snmp_trapmap/snmp/ber"
)

// ErrUnsupportedVersion is returned for any message version other than
// SNMPv1 (0) or SNMPv2c (1).
var ErrUnsupportedVersion = errors.New("unsupported SNMP version")

// Version is the message version field as carried on the wire.
type Version int

const (
	V1  Version = 0
	V2C Version = 1
)

func (v Version) String() string {
	switch v {
	case V1:
		return "1"
	case V2C:
		return "2c"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// MarshalText renders the String form so JSON output reads "2c" rather than 1.
func (v Version) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// PDUType is the context tag number framing the PDU.
type PDUType uint8

const (
	Get PDUType = iota
	GetNext
	Response
	Set
	Trap // SNMPv1 Trap-PDU, different body layout
	GetBulk
	InformRequest
	SNMPv2Trap
	Report
)

func (t PDUType) String() string {
	switch t {
	case Get:
		return "GetRequest"
	case GetNext:
		return "GetNextRequest"
	case Response:
		return "Response"
	case Set:
		return "SetRequest"
	case Trap:
		return "Trap"
	case GetBulk:
		return "GetBulkRequest"
	case InformRequest:
		return "InformRequest"
	case SNMPv2Trap:
		return "SNMPv2Trap"
	case Report:
		return "Report"
	default:
		return fmt.Sprintf("PDUType(%d)", uint8(t))
	}
}

func (t PDUType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// IsNotification reports whether t is one of the unsolicited notification
// PDUs: Trap, SNMPv2Trap or InformRequest.
func (t PDUType) IsNotification() bool {
	return t == Trap || t == SNMPv2Trap || t == InformRequest
}

// ErrorStatus is the error-status field of a response PDU (RFC 3416 §3).
type ErrorStatus int32

const (
	NoError ErrorStatus = iota
	TooBig
	NoSuchName
	BadValue
	ReadOnly
	GenErr
	NoAccess
	WrongType
	WrongLength
	WrongEncoding
	WrongValue
	NoCreation
	InconsistentValue
	ResourceUnavailable
	CommitFailed
	UndoFailed
	AuthorizationError
	NotWritable
	InconsistentName
)

// Generic trap codes of the SNMPv1 Trap-PDU (RFC 1157 §4.1.6).
const (
	GenericColdStart             = 0
	GenericWarmStart             = 1
	GenericLinkDown              = 2
	GenericLinkUp                = 3
	GenericAuthenticationFailure = 4
	GenericEGPNeighborLoss       = 5
	GenericEnterpriseSpecific    = 6
)

// Header is the message preamble shared by every PDU.
type Header struct {
	Version   Version `json:"version"`
	Community string  `json:"community"`
}

// V1Trap carries the fields that replace request-id, error-status and
// error-index in an SNMPv1 Trap-PDU.
type V1Trap struct {
	Enterprise   ber.OID    `json:"enterprise"`
	AgentAddress netip.Addr `json:"agent_address"`
	GenericTrap  int64      `json:"generic_trap"`
	SpecificTrap int64      `json:"specific_trap"`
	TimeStamp    uint32     `json:"time_stamp"`
}

// Datagram is one SNMP message together with receive metadata that is not
// part of the wire form.
type Datagram struct {
	ReceivedTime  time.Time `json:"received_time"`
	SourceAddress string    `json:"source_address"`

	Header      Header      `json:"header"`
	PDUType     PDUType     `json:"pdu_type"`
	RequestID   int32       `json:"request_id"`
	ErrorStatus ErrorStatus `json:"error_status"`
	ErrorIndex  int32       `json:"error_index"`
	VarBinds    []VarBind   `json:"var_binds"`

	// V1Trap is set if and only if PDUType is Trap.
	V1Trap *V1Trap `json:"v1_trap,omitempty"`
}

// NonRepeaters returns the GetBulk non-repeaters value, which shares the wire
// position of error-status.
func (d *Datagram) NonRepeaters() int32 { return int32(d.ErrorStatus) }

// MaxRepetitions returns the GetBulk max-repetitions value, which shares the
// wire position of error-index.
func (d *Datagram) MaxRepetitions() int32 { return d.ErrorIndex }

// Find returns the first var-binding whose OID equals oid.
func (d *Datagram) Find(oid ber.OID) (VarBind, bool) {
	for _, vb := range d.VarBinds {
		if vb.OID.Equal(oid) {
			return vb, true
		}
	}
	return VarBind{}, false
}

// Equal compares every field, receive metadata included. Var-bindings must
// match in order.
func (d *Datagram) Equal(o *Datagram) bool {
	if d == nil || o == nil {
		return d == o
	}
	if !d.ReceivedTime.Equal(o.ReceivedTime) ||
		d.SourceAddress != o.SourceAddress ||
		d.Header != o.Header ||
		d.PDUType != o.PDUType ||
		d.RequestID != o.RequestID ||
		d.ErrorStatus != o.ErrorStatus ||
		d.ErrorIndex != o.ErrorIndex {
		return false
	}
	if !slices.EqualFunc(d.VarBinds, o.VarBinds, VarBind.Equal) {
		return false
	}
	return d.V1Trap.equal(o.V1Trap)
}

func (t *V1Trap) equal(o *V1Trap) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Enterprise.Equal(o.Enterprise) &&
		t.AgentAddress == o.AgentAddress &&
		t.GenericTrap == o.GenericTrap &&
		t.SpecificTrap == o.SpecificTrap &&
		t.TimeStamp == o.TimeStamp
}
