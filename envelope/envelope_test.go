package envelope_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_trapmap/envelope"
	"github.com/vpbank/snmp_trapmap/snmp/ber"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
)

func TestFileTime(t *testing.T) {
	unixEpoch := time.Unix(0, 0).UTC()
	assert.Equal(t, int64(116444736000000000), envelope.ToFileTime(unixEpoch))
	assert.True(t, unixEpoch.Equal(envelope.FromFileTime(116444736000000000)))

	ts := time.Date(2024, 2, 29, 23, 59, 59, 123456700, time.UTC)
	assert.True(t, ts.Equal(envelope.FromFileTime(envelope.ToFileTime(ts))))

	// Sub-tick precision is truncated.
	fine := ts.Add(42 * time.Nanosecond)
	assert.True(t, ts.Equal(envelope.FromFileTime(envelope.ToFileTime(fine))))

	assert.Zero(t, envelope.ToFileTime(time.Time{}))
	assert.True(t, envelope.FromFileTime(0).IsZero())
}

func TestFromDatagram(t *testing.T) {
	received := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := datagram.NewTrapV2("public", 1, 100, ber.MustParseOID("1.3.6.1.4.1.500.12"))
	d.SourceAddress = "10.0.0.1"
	d.ReceivedTime = received

	e := envelope.FromDatagram(d)
	assert.Equal(t, received, e.ReceivedTime)
	assert.Equal(t, received, e.OccurrenceTime)
	assert.Equal(t, "10.0.0.1", e.Source)
	assert.Equal(t, envelope.ProtocolSNMP, e.Protocol)

	got, ok := e.Datagram()
	require.True(t, ok)
	assert.Same(t, d, got)
}

func TestEnvelope_DatagramAccessor(t *testing.T) {
	var nilEnv *envelope.Envelope
	_, ok := nilEnv.Datagram()
	assert.False(t, ok)

	_, ok = (&envelope.Envelope{Payload: "text"}).Datagram()
	assert.False(t, ok)

	var nilDatagram *datagram.Datagram
	_, ok = (&envelope.Envelope{Payload: nilDatagram}).Datagram()
	assert.False(t, ok)

	byValue := datagram.Datagram{PDUType: datagram.SNMPv2Trap}
	got, ok := (&envelope.Envelope{Payload: byValue}).Datagram()
	require.True(t, ok)
	assert.Equal(t, datagram.SNMPv2Trap, got.PDUType)
}

func TestRecord_RoundTrip(t *testing.T) {
	received := time.Date(2024, 5, 6, 7, 8, 9, 100, time.UTC)
	d := datagram.NewTrapV2("public", 9, 506009, ber.MustParseOID("1.3.6.1.4.1.500.12"),
		datagram.Integer(ber.MustParseOID("1.3.6.1.4.1.1.1.1"), 5))
	d.SourceAddress = "198.51.100.2"
	d.ReceivedTime = received

	e := envelope.FromDatagram(d)
	e.OccurrenceTime = received.Add(-time.Second)
	e.TypeID = "fake-trap"

	rec, err := envelope.FromEnvelope(e)
	require.NoError(t, err)
	assert.Equal(t, "snmp", rec.Protocol)
	assert.Equal(t, "fake-trap", rec.TypeID)
	assert.NotEmpty(t, rec.Payload)

	// The record survives JSON transport.
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	var wire envelope.Record
	require.NoError(t, json.Unmarshal(b, &wire))

	back, err := wire.Envelope()
	require.NoError(t, err)
	assert.True(t, e.ReceivedTime.Equal(back.ReceivedTime))
	assert.True(t, e.OccurrenceTime.Equal(back.OccurrenceTime))
	assert.Equal(t, e.Source, back.Source)
	assert.Equal(t, e.TypeID, back.TypeID)

	replayed, ok := back.Datagram()
	require.True(t, ok)
	assert.True(t, d.Equal(replayed), "replayed datagram differs: %+v", replayed)
}

func TestRecord_RawPayload(t *testing.T) {
	e := envelope.New(time.Unix(1700000000, 0), "host", "syslog", []byte("<13>hello"))
	rec, err := envelope.FromEnvelope(e)
	require.NoError(t, err)

	back, err := rec.Envelope()
	require.NoError(t, err)
	assert.Equal(t, []byte("<13>hello"), back.Payload)
	assert.Equal(t, "syslog", back.Protocol)
}

func TestRecord_Errors(t *testing.T) {
	_, err := envelope.FromEnvelope(&envelope.Envelope{Payload: 42})
	assert.ErrorIs(t, err, envelope.ErrUnsupportedPayload)

	_, err = envelope.Record{Protocol: "snmp", Payload: []byte{0x30, 0x05}}.Envelope()
	assert.ErrorIs(t, err, ber.ErrTruncated)
}
