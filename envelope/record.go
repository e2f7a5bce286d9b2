package envelope

import (
	"errors"
	"fmt"
	"time"

	"github.com/vpbank/snmp_trapmap/snmp/datagram"
)

// ErrUnsupportedPayload is returned by FromEnvelope for payloads that have
// no byte form.
var ErrUnsupportedPayload = errors.New("envelope: unsupported payload type")

// Record is the flat, serialisable form of an Envelope. Timestamps are
// Windows file times: 100-nanosecond intervals since 1601-01-01 UTC.
type Record struct {
	ReceivedFileTimeUTC   int64  `json:"received_ft"`
	OccurrenceFileTimeUTC int64  `json:"occurrence_ft"`
	TypeID                string `json:"type_id"`
	Source                string `json:"source"`
	Protocol              string `json:"protocol"`
	Payload               []byte `json:"payload"`
}

// Seconds between 1601-01-01 and 1970-01-01.
const fileTimeEpochDelta = 11644473600

// ToFileTime converts t to a file time. The zero time maps to 0.
func ToFileTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return (t.Unix()+fileTimeEpochDelta)*1e7 + int64(t.Nanosecond()/100)
}

// FromFileTime is the inverse of ToFileTime; 0 maps to the zero time.
func FromFileTime(ft int64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	return time.Unix(ft/1e7-fileTimeEpochDelta, (ft%1e7)*100).UTC()
}

// FromEnvelope flattens e. A datagram payload is stored as its BER encoding;
// a []byte payload is stored as is.
func FromEnvelope(e *Envelope) (Record, error) {
	r := Record{
		ReceivedFileTimeUTC:   ToFileTime(e.ReceivedTime),
		OccurrenceFileTimeUTC: ToFileTime(e.OccurrenceTime),
		TypeID:                e.TypeID,
		Source:                e.Source,
		Protocol:              e.Protocol,
	}
	switch p := e.Payload.(type) {
	case nil:
	case []byte:
		r.Payload = p
	default:
		d, ok := e.Datagram()
		if !ok {
			return r, fmt.Errorf("%w: %T", ErrUnsupportedPayload, e.Payload)
		}
		b, err := d.Encode()
		if err != nil {
			return r, fmt.Errorf("envelope: encode payload: %w", err)
		}
		r.Payload = b
		if r.Protocol == "" {
			r.Protocol = ProtocolSNMP
		}
	}
	return r, nil
}

// Envelope rebuilds the in-memory form. SNMP payloads are decoded back into
// a Datagram carrying the record's source and received time; any other
// protocol keeps the raw bytes.
func (r Record) Envelope() (*Envelope, error) {
	e := &Envelope{
		OccurrenceTime: FromFileTime(r.OccurrenceFileTimeUTC),
		ReceivedTime:   FromFileTime(r.ReceivedFileTimeUTC),
		TypeID:         r.TypeID,
		Source:         r.Source,
		Protocol:       r.Protocol,
		Payload:        r.Payload,
	}
	if r.Protocol != ProtocolSNMP {
		return e, nil
	}
	d, err := datagram.DecodeFrom(r.Payload, r.Source, e.ReceivedTime)
	if err != nil {
		return nil, fmt.Errorf("envelope: decode payload: %w", err)
	}
	e.Payload = d
	return e, nil
}
