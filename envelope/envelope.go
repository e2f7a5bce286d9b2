// Package envelope defines the metadata wrapper that carries one event
// through the pipeline, and its flat Record form used to move events across
// process and storage boundaries.
package envelope

import (
	"time"

	"github.com/vpbank/snmp_trapmap/snmp/datagram"
)

// ProtocolSNMP is the Protocol value of envelopes carrying a Datagram.
const ProtocolSNMP = "snmp"

// Envelope wraps one event. Payload is held by reference for the duration of
// processing; PayloadInstance is filled by the type map once the payload has
// been mapped to a registered type.
type Envelope struct {
	OccurrenceTime time.Time
	ReceivedTime   time.Time
	TypeID         string
	Source         string
	Protocol       string

	Payload         any
	PayloadInstance any
}

// New returns an envelope with both timestamps set to received.
func New(received time.Time, source, protocol string, payload any) *Envelope {
	return &Envelope{
		OccurrenceTime: received,
		ReceivedTime:   received,
		Source:         source,
		Protocol:       protocol,
		Payload:        payload,
	}
}

// FromDatagram wraps d, copying its receive time and source address.
func FromDatagram(d *datagram.Datagram) *Envelope {
	return New(d.ReceivedTime, d.SourceAddress, ProtocolSNMP, d)
}

// Datagram returns the payload when it is a datagram. A datagram stored by
// value is accepted as well.
func (e *Envelope) Datagram() (*datagram.Datagram, bool) {
	if e == nil {
		return nil, false
	}
	switch p := e.Payload.(type) {
	case *datagram.Datagram:
		return p, p != nil
	case datagram.Datagram:
		return &p, true
	}
	return nil, false
}
