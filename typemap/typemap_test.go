package typemap_test

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_trapmap/envelope"
	"github.com/vpbank/snmp_trapmap/snmp/ber"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
	"github.com/vpbank/snmp_trapmap/typemap"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

const (
	fakeTrapOID = "1.3.6.1.4.1.500.12"
	integerOID  = "1.3.6.1.4.1.1.1.1"
	extraOID    = "1.3.6.1.4.1.1.1.2"
	sysUpTime   = "1.3.6.1.2.1.1.3.0"
)

type FakeTrap struct {
	SysUpTime     uint64
	Integer       int64
	SourceAddress netip.Addr
	Objects       []datagram.VarBind
	ReceivedTime  time.Time
}

type FakeTrapStringIP struct {
	SourceAddress string
	Integer       int32
}

type UnmarkedTrap struct {
	Integer int64
}

type Severity uint8

const (
	SeverityUnknown Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityCritical
	SeverityMajor
	SeverityMinor
)

type FakeTrap3 struct {
	Severity Severity
	Text     string
}

func fakeTrapDescriptor() typemap.Descriptor {
	return typemap.Describe[FakeTrap]("fake-trap").
		Trap(fakeTrapOID).
		Unsigned("sys_up_time", sysUpTime, func(t *FakeTrap, v uint64) { t.SysUpTime = v }).
		Integer("integer", integerOID, func(t *FakeTrap, v int64) { t.Integer = v }).
		SourceAddress("source_address", func(t *FakeTrap, a netip.Addr) { t.SourceAddress = a }).
		Objects("objects", func(t *FakeTrap, vbs []datagram.VarBind) { t.Objects = vbs }).
		ReceivedTime("received_time", func(t *FakeTrap, ts time.Time) { t.ReceivedTime = ts }).
		MustBuild()
}

var received = time.Date(2024, 3, 14, 15, 9, 26, 535000000, time.UTC)

func fakeEnvelope() *envelope.Envelope {
	d := datagram.NewTrapV2("public", 42, 506009, ber.MustParseOID(fakeTrapOID),
		datagram.Integer(ber.MustParseOID(integerOID), 5),
		datagram.Counter64(ber.MustParseOID(extraOID), 8938),
	)
	d.SourceAddress = "192.0.2.17"
	d.ReceivedTime = received
	return envelope.FromDatagram(d)
}

type recordingObserver struct {
	mu     sync.Mutex
	misses []string
}

func (o *recordingObserver) CoercionMiss(id typemap.TypeID, field string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses = append(o.misses, string(id)+"."+field)
}

// ─────────────────────────────────────────────────────────────────────────────
// Transform
// ─────────────────────────────────────────────────────────────────────────────

func TestTransform_FakeTrap(t *testing.T) {
	m := typemap.New()
	require.NoError(t, m.Register(fakeTrapDescriptor()))

	transform, ok := m.GetTransform("fake-trap")
	require.True(t, ok)

	got, ok := transform(fakeEnvelope()).(*FakeTrap)
	require.True(t, ok)

	assert.Equal(t, uint64(506009), got.SysUpTime)
	assert.Equal(t, int64(5), got.Integer)
	assert.Equal(t, netip.MustParseAddr("192.0.2.17"), got.SourceAddress)
	assert.True(t, received.Equal(got.ReceivedTime))

	require.Len(t, got.Objects, 4)
	extra := got.Objects[3]
	assert.True(t, extra.OID.Equal(ber.MustParseOID(extraOID)))
	assert.Equal(t, ber.TagCounter64, extra.Tag)
	v, ok := extra.Value.AsUint()
	require.True(t, ok)
	assert.Equal(t, uint64(8938), v)
}

func TestTransform_NilInput(t *testing.T) {
	m := typemap.New()
	require.NoError(t, m.Register(fakeTrapDescriptor()))
	transform, ok := m.GetTransform("fake-trap")
	require.True(t, ok)

	assert.Nil(t, transform(nil))
	assert.Nil(t, transform(&envelope.Envelope{}))
	assert.Nil(t, transform(envelope.New(received, "h", "syslog", []byte("x"))))
}

func TestTransform_AbsentOIDLeavesDefault(t *testing.T) {
	d := datagram.NewTrapV2("public", 1, 7, ber.MustParseOID(fakeTrapOID))
	env := envelope.FromDatagram(d)

	got := fakeTrapDescriptor().Compile(nil)(env).(*FakeTrap)
	assert.Equal(t, uint64(7), got.SysUpTime)
	assert.Zero(t, got.Integer)
	assert.False(t, got.SourceAddress.IsValid())
}

func TestTransform_SourceAddressString(t *testing.T) {
	desc := typemap.Describe[FakeTrapStringIP]("fake-trap-string-ip").
		SourceAddressString("source", func(t *FakeTrapStringIP, s string) { t.SourceAddress = s }).
		Integer("integer", integerOID, func(t *FakeTrapStringIP, v int64) { t.Integer = int32(v) }).
		MustBuild()

	got := desc.Compile(nil)(fakeEnvelope()).(*FakeTrapStringIP)
	assert.Equal(t, "192.0.2.17", got.SourceAddress)
	assert.Equal(t, int32(5), got.Integer)
}

func TestTransform_SourceAddressFromEnvelope(t *testing.T) {
	env := fakeEnvelope()
	dg, _ := env.Datagram()
	dg.SourceAddress = ""
	env.Source = "198.51.100.4:1620"

	got := fakeTrapDescriptor().Compile(nil)(env).(*FakeTrap)
	assert.Equal(t, netip.MustParseAddr("198.51.100.4"), got.SourceAddress)
}

func TestTransform_Enum(t *testing.T) {
	b := typemap.Describe[FakeTrap3]("fake-trap-3").Trap("1.3.6.1.4.1.500.13")
	typemap.Number(b, "severity", integerOID, func(t *FakeTrap3, s Severity) { t.Severity = s })
	b.String("text", extraOID, func(t *FakeTrap3, s string) { t.Text = s })
	desc := b.MustBuild()

	d := datagram.NewTrapV2("public", 1, 1, ber.MustParseOID("1.3.6.1.4.1.500.13"),
		datagram.Integer(ber.MustParseOID(integerOID), 3),
		datagram.OctetString(ber.MustParseOID(extraOID), []byte("disk full\x00")),
	)
	got := desc.Compile(nil)(envelope.FromDatagram(d)).(*FakeTrap3)
	assert.Equal(t, SeverityCritical, got.Severity)
	assert.Equal(t, "disk full", got.Text)
}

// ─────────────────────────────────────────────────────────────────────────────
// Coercion
// ─────────────────────────────────────────────────────────────────────────────

type coerced struct {
	Signed   int64
	Unsigned uint64
	Small    int8
	Text     string
	Raw      []byte
	OID      ber.OID
	Addr     netip.Addr
}

func coercedDescriptor() typemap.Descriptor {
	b := typemap.Describe[coerced]("coerced").
		Integer("signed", "1.3.6.1.9.1", func(c *coerced, v int64) { c.Signed = v }).
		Unsigned("unsigned", "1.3.6.1.9.2", func(c *coerced, v uint64) { c.Unsigned = v }).
		String("text", "1.3.6.1.9.4", func(c *coerced, v string) { c.Text = v }).
		Bytes("raw", "1.3.6.1.9.5", func(c *coerced, v []byte) { c.Raw = v }).
		ObjectID("oid", "1.3.6.1.9.6", func(c *coerced, v ber.OID) { c.OID = v }).
		IPAddress("addr", "1.3.6.1.9.7", func(c *coerced, v netip.Addr) { c.Addr = v })
	typemap.Number(b, "small", "1.3.6.1.9.3", func(c *coerced, v int8) { c.Small = v })
	return b.MustBuild()
}

func coerce(t *testing.T, vbs ...datagram.VarBind) (*coerced, []string) {
	t.Helper()
	obs := &recordingObserver{}
	m := typemap.New(typemap.WithObserver(obs))
	require.NoError(t, m.Register(coercedDescriptor()))
	transform, ok := m.GetTransform("coerced")
	require.True(t, ok)

	d := datagram.NewTrapV2("public", 1, 1, ber.MustParseOID("1.3.6.1.9"), vbs...)
	return transform(envelope.FromDatagram(d)).(*coerced), obs.misses
}

func TestCoercion_Widening(t *testing.T) {
	got, misses := coerce(t,
		datagram.Counter32(ber.MustParseOID("1.3.6.1.9.1"), 4000000000),
		datagram.Integer(ber.MustParseOID("1.3.6.1.9.2"), 17),
		datagram.Integer(ber.MustParseOID("1.3.6.1.9.3"), -100),
	)
	assert.Empty(t, misses)
	assert.Equal(t, int64(4000000000), got.Signed)
	assert.Equal(t, uint64(17), got.Unsigned)
	assert.Equal(t, int8(-100), got.Small)
}

func TestCoercion_RejectsOutOfRange(t *testing.T) {
	got, misses := coerce(t,
		datagram.Counter64(ber.MustParseOID("1.3.6.1.9.1"), 1<<63),
		datagram.Integer(ber.MustParseOID("1.3.6.1.9.2"), -1),
		datagram.Integer(ber.MustParseOID("1.3.6.1.9.3"), 200),
	)
	assert.ElementsMatch(t, []string{"coerced.signed", "coerced.unsigned", "coerced.small"}, misses)
	assert.Zero(t, got.Signed)
	assert.Zero(t, got.Unsigned)
	assert.Zero(t, got.Small)
}

func TestCoercion_Variants(t *testing.T) {
	got, misses := coerce(t,
		datagram.ObjectIdentifier(ber.MustParseOID("1.3.6.1.9.4"), ber.MustParseOID("1.3.6.1.4.1.9")),
		datagram.Text(ber.MustParseOID("1.3.6.1.9.5"), "abc"),
		datagram.Text(ber.MustParseOID("1.3.6.1.9.6"), ".1.3.6.1.2.1"),
		datagram.OctetString(ber.MustParseOID("1.3.6.1.9.7"), []byte{10, 1, 2, 3}),
	)
	assert.Empty(t, misses)
	assert.Equal(t, "1.3.6.1.4.1.9", got.Text)
	assert.Equal(t, []byte("abc"), got.Raw)
	assert.Equal(t, "1.3.6.1.2.1", got.OID.String())
	assert.Equal(t, netip.MustParseAddr("10.1.2.3"), got.Addr)
}

func TestCoercion_IncompatibleLeavesDefault(t *testing.T) {
	got, misses := coerce(t,
		datagram.ObjectIdentifier(ber.MustParseOID("1.3.6.1.9.1"), ber.MustParseOID("1.3.6.1.4.1.9")),
		datagram.Text(ber.MustParseOID("1.3.6.1.9.2"), "12"),
		datagram.Null(ber.MustParseOID("1.3.6.1.9.4")),
		datagram.Integer(ber.MustParseOID("1.3.6.1.9.7"), 1),
	)
	assert.ElementsMatch(t, []string{"coerced.signed", "coerced.unsigned", "coerced.text", "coerced.addr"}, misses)
	assert.Zero(t, got.Signed)
	assert.Zero(t, got.Unsigned)
	assert.Empty(t, got.Text)
	assert.False(t, got.Addr.IsValid())
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

func TestKeys(t *testing.T) {
	m := typemap.New()
	require.NoError(t, m.Register(fakeTrapDescriptor()))
	require.NoError(t, m.Register(typemap.Describe[UnmarkedTrap]("unmarked").
		Integer("integer", integerOID, func(u *UnmarkedTrap, v int64) { u.Integer = v }).
		MustBuild()))

	env := fakeEnvelope()
	input := m.GetInputKey(env)
	assert.Equal(t, fakeTrapOID, input.String())
	assert.True(t, input.Equal(m.GetTypeKey("fake-trap")))

	assert.True(t, m.GetTypeKey("unmarked").IsZero())
	assert.True(t, m.GetTypeKey("missing").IsZero())
	assert.True(t, m.GetInputKey(nil).IsZero())

	// An unmarked type is still mappable.
	transform, ok := m.GetTransform("unmarked")
	require.True(t, ok)
	assert.Equal(t, int64(5), transform(env).(*UnmarkedTrap).Integer)

	_, ok = m.GetTransform("missing")
	assert.False(t, ok)
}

func TestApply(t *testing.T) {
	m := typemap.New()
	require.NoError(t, m.Register(fakeTrapDescriptor()))

	env := fakeEnvelope()
	obj, id, ok := m.Apply(env)
	require.True(t, ok)
	assert.Equal(t, typemap.TypeID("fake-trap"), id)
	assert.Equal(t, "fake-trap", env.TypeID)
	assert.Same(t, obj, env.PayloadInstance)

	other := datagram.NewTrapV2("public", 1, 1, ber.MustParseOID("1.3.6.1.4.1.999"))
	_, _, ok = m.Apply(envelope.FromDatagram(other))
	assert.False(t, ok)
}

func TestApply_V1Trap(t *testing.T) {
	m := typemap.New()
	require.NoError(t, m.Register(typemap.Describe[UnmarkedTrap]("enterprise-7").
		Trap("1.3.6.1.4.1.500.0.7").
		Integer("integer", integerOID, func(u *UnmarkedTrap, v int64) { u.Integer = v }).
		MustBuild()))

	d := datagram.NewTrapV1("public", ber.MustParseOID("1.3.6.1.4.1.500"), netip.MustParseAddr("10.0.0.1"),
		datagram.GenericEnterpriseSpecific, 7, 100,
		datagram.Integer(ber.MustParseOID(integerOID), 9))
	obj, id, ok := m.Apply(envelope.FromDatagram(d))
	require.True(t, ok)
	assert.Equal(t, typemap.TypeID("enterprise-7"), id)
	assert.Equal(t, int64(9), obj.(*UnmarkedTrap).Integer)
}

func TestRegister(t *testing.T) {
	m := typemap.New()
	require.NoError(t, m.Register(fakeTrapDescriptor()))

	clash := typemap.Describe[UnmarkedTrap]("clash").Trap(fakeTrapOID).MustBuild()
	assert.Error(t, m.Register(clash))

	assert.Error(t, m.Register(typemap.Descriptor{}))

	// Re-registering moves the trap key and evicts the cached transform.
	first, ok := m.GetTransform("fake-trap")
	require.True(t, ok)
	moved := typemap.Describe[UnmarkedTrap]("fake-trap").
		Trap("1.3.6.1.4.1.500.99").
		Integer("integer", integerOID, func(u *UnmarkedTrap, v int64) { u.Integer = v }).
		MustBuild()
	require.NoError(t, m.Register(moved))

	_, ok = m.Lookup(ber.MustParseOID(fakeTrapOID))
	assert.False(t, ok)
	id, ok := m.Lookup(ber.MustParseOID("1.3.6.1.4.1.500.99"))
	require.True(t, ok)
	assert.Equal(t, typemap.TypeID("fake-trap"), id)

	second, ok := m.GetTransform("fake-trap")
	require.True(t, ok)
	assert.IsType(t, &FakeTrap{}, first(fakeEnvelope()))
	assert.IsType(t, &UnmarkedTrap{}, second(fakeEnvelope()))

	assert.Equal(t, []typemap.TypeID{"fake-trap"}, m.Types())
	assert.True(t, m.Unregister("fake-trap"))
	assert.False(t, m.Unregister("fake-trap"))
	assert.Empty(t, m.Types())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		b    *typemap.Builder[UnmarkedTrap]
	}{
		{"no id", typemap.Describe[UnmarkedTrap]("")},
		{"bad trap oid", typemap.Describe[UnmarkedTrap]("x").Trap("1.3.x")},
		{"bad field oid", typemap.Describe[UnmarkedTrap]("x").
			Integer("i", "1..2", func(*UnmarkedTrap, int64) {})},
		{"missing oid", typemap.Describe[UnmarkedTrap]("x").
			Integer("i", "", func(*UnmarkedTrap, int64) {})},
		{"duplicate field", typemap.Describe[UnmarkedTrap]("x").
			Integer("i", "1.3.6", func(*UnmarkedTrap, int64) {}).
			Integer("i", "1.3.7", func(*UnmarkedTrap, int64) {})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.b.Build()
			assert.Error(t, err)
			assert.Panics(t, func() { tc.b.MustBuild() })
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Concurrency
// ─────────────────────────────────────────────────────────────────────────────

func TestGetTransform_Concurrent(t *testing.T) {
	m := typemap.New()
	require.NoError(t, m.Register(fakeTrapDescriptor()))
	require.NoError(t, m.Register(coercedDescriptor()))

	const workers = 32
	results := make([]*FakeTrap, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := typemap.TypeID("fake-trap")
			if i%2 == 1 {
				// Interleave a disjoint type.
				if _, ok := m.GetTransform("coerced"); !ok {
					t.Error("coerced transform missing")
				}
			}
			transform, ok := m.GetTransform(id)
			if !ok {
				t.Error("fake-trap transform missing")
				return
			}
			results[i], _ = transform(fakeEnvelope()).(*FakeTrap)
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		require.NotNil(t, results[i])
		assert.Equal(t, results[0], results[i])
	}
}

// Replacing or removing a type while other goroutines compile it must never
// hand out a transform of the previous descriptor afterwards.
func TestGetTransform_ReplacedWhileCompiling(t *testing.T) {
	m := typemap.New()
	unmarked := typemap.Describe[UnmarkedTrap]("fake-trap").
		Trap(fakeTrapOID).
		Integer("integer", integerOID, func(u *UnmarkedTrap, v int64) { u.Integer = v }).
		MustBuild()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.GetTransform("fake-trap")
				}
			}
		}()
	}
	defer func() {
		close(stop)
		wg.Wait()
	}()

	for i := 0; i < 500; i++ {
		require.NoError(t, m.Register(fakeTrapDescriptor()))
		transform, ok := m.GetTransform("fake-trap")
		require.True(t, ok)
		require.IsType(t, &FakeTrap{}, transform(fakeEnvelope()))

		require.NoError(t, m.Register(unmarked))
		transform, ok = m.GetTransform("fake-trap")
		require.True(t, ok)
		require.IsType(t, &UnmarkedTrap{}, transform(fakeEnvelope()))

		require.True(t, m.Unregister("fake-trap"))
		_, ok = m.GetTransform("fake-trap")
		require.False(t, ok)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Record descriptors
// ─────────────────────────────────────────────────────────────────────────────

func TestDescribeRecord(t *testing.T) {
	desc, err := typemap.DescribeRecord("fake-trap", fakeTrapOID, []typemap.FieldSpec{
		{Name: "sys_up_time", OID: sysUpTime, Syntax: typemap.SyntaxUnsigned},
		{Name: "integer", OID: integerOID, Syntax: typemap.SyntaxInteger},
		{Name: "extra", OID: extraOID},
		{Name: "source_address", From: typemap.FromSourceAddress, Syntax: typemap.SyntaxIP},
		{Name: "objects", From: typemap.FromObjects},
		{Name: "received_time", From: typemap.FromReceivedTime},
	})
	require.NoError(t, err)
	assert.Equal(t, fakeTrapOID, desc.TypeKey().String())

	rec := *desc.Compile(nil)(fakeEnvelope()).(*typemap.Record)
	assert.Equal(t, uint64(506009), rec["sys_up_time"])
	assert.Equal(t, int64(5), rec["integer"])
	assert.Equal(t, uint64(8938), rec["extra"])
	assert.Equal(t, netip.MustParseAddr("192.0.2.17"), rec["source_address"])
	assert.Len(t, rec["objects"], 4)
	assert.Equal(t, received, rec["received_time"])
}

func TestDescribeRecord_Errors(t *testing.T) {
	tests := []struct {
		name  string
		field typemap.FieldSpec
	}{
		{"both", typemap.FieldSpec{Name: "f", OID: "1.3", From: typemap.FromObjects}},
		{"neither", typemap.FieldSpec{Name: "f"}},
		{"unknown syntax", typemap.FieldSpec{Name: "f", OID: "1.3", Syntax: "float"}},
		{"unknown source", typemap.FieldSpec{Name: "f", From: "hostname"}},
		{"bad source syntax", typemap.FieldSpec{Name: "f", From: typemap.FromSourceAddress, Syntax: "integer"}},
		{"bad oid", typemap.FieldSpec{Name: "f", OID: "1.-3", Syntax: typemap.SyntaxInteger}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := typemap.DescribeRecord("r", "", []typemap.FieldSpec{tc.field})
			assert.Error(t, err)
		})
	}
}
