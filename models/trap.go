// Package models defines the data structures shared between the receive,
// mapping and output layers of the trap mapper. Nothing here depends on any
// other internal package.
package models

import "time"

// TrapEvent is the top-level payload emitted per received trap. Exactly one
// of Object and Unregistered is set: Object when the trap OID correlates to a
// registered type, Unregistered otherwise.
type TrapEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	OccurrenceTime time.Time `json:"occurrence_time"`
	TypeID         string    `json:"type_id,omitempty"`
	Source         string    `json:"source"`
	Protocol       string    `json:"protocol"`
	TrapOID        string    `json:"trap_oid,omitempty"`

	Object       any       `json:"object,omitempty"`
	Unregistered *SNMPTrap `json:"unregistered_trap,omitempty"`

	Metadata EventMetadata `json:"metadata"`
}

// EventMetadata carries operational metadata about how the event was
// processed.
type EventMetadata struct {
	MapperID string `json:"mapper_id,omitempty"`
	Archived bool   `json:"archived,omitempty"`
}

// IsRegistered reports whether the event was mapped to a registered type.
func (e *TrapEvent) IsRegistered() bool { return e.Unregistered == nil }

// SNMPTrap is the generic rendering of a trap no registered type claims.
type SNMPTrap struct {
	Timestamp time.Time `json:"timestamp"`
	Device    Device    `json:"device"`
	TrapInfo  TrapInfo  `json:"trap_info"`
	Varbinds  []Varbind `json:"varbinds"`
}

// Device identifies the agent that sent the trap.
type Device struct {
	IPAddress   string `json:"ip_address"`
	Community   string `json:"community,omitempty"`
	SNMPVersion string `json:"snmp_version"` // "1" or "2c"
}

// TrapInfo carries the trap header fields.
type TrapInfo struct {
	PDUType       string `json:"pdu_type"`
	EnterpriseOID string `json:"enterprise_oid,omitempty"` // v1 only
	AgentAddress  string `json:"agent_address,omitempty"`  // v1 only
	GenericTrap   int64  `json:"generic_trap,omitempty"`   // v1 only (0–6)
	SpecificTrap  int64  `json:"specific_trap,omitempty"`  // v1 only
	TrapOID       string `json:"trap_oid"`
	Uptime        uint32 `json:"uptime"` // hundredths of a second
	RequestID     int32  `json:"request_id,omitempty"`
}

// Varbind is one payload binding with its value already converted to a plain
// Go type (int64, uint64, string, []byte or nil).
type Varbind struct {
	OID   string `json:"oid"`
	Type  string `json:"type"` // tag name, e.g. "Counter64"
	Value any    `json:"value"`
}
