package typemap

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/vpbank/snmp_trapmap/envelope"
	"github.com/vpbank/snmp_trapmap/snmp/ber"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
)

// Descriptor is the compiled-ready description of one target type: its
// identifier, its optional trap registration key and the field rules. It is
// produced by Builder.Build and is immutable.
type Descriptor struct {
	ID      TypeID
	TrapOID ber.OID
	Fields  []string

	compile func(miss func(field string)) Transform
}

// TypeKey returns the trap registration key, or the zero OID when the type
// declares none.
func (d Descriptor) TypeKey() ber.OID { return d.TrapOID.Clone() }

// Compile builds a standalone transform for d. Coercion misses are reported
// to miss, which may be nil.
func (d Descriptor) Compile(miss func(field string)) Transform {
	if d.compile == nil {
		return func(*envelope.Envelope) any { return nil }
	}
	if miss == nil {
		miss = func(string) {}
	}
	return d.compile(miss)
}

// input is what field rules read from.
type input struct {
	env *envelope.Envelope
	dg  *datagram.Datagram
}

type rule[T any] struct {
	field string
	oid   ber.OID // nil for rules that do not read a var-binding
	set   func(t *T, in input, vb datagram.VarBind) bool
}

// Builder collects the field rules of target type T. Methods record the
// first error and return the builder so a description reads as one chain;
// the error surfaces from Build.
type Builder[T any] struct {
	id      TypeID
	trap    ber.OID
	newT    func() *T
	rules   []rule[T]
	byField map[string]bool
	err     error
}

// Describe starts the description of T under id.
func Describe[T any](id TypeID) *Builder[T] {
	return &Builder[T]{id: id, newT: func() *T { return new(T) }, byField: map[string]bool{}}
}

// Trap declares the trap OID that registers T with a Map.
func (b *Builder[T]) Trap(oid string) *Builder[T] {
	o, err := ber.ParseOID(oid)
	if err != nil {
		b.fail(fmt.Errorf("trap oid: %w", err))
		return b
	}
	b.trap = o
	return b
}

// Constructor replaces new(T) as the way instances are created.
func (b *Builder[T]) Constructor(fn func() *T) *Builder[T] {
	if fn != nil {
		b.newT = fn
	}
	return b
}

func (b *Builder[T]) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder[T]) add(field, oid string, set func(*T, input, datagram.VarBind) bool) *Builder[T] {
	if field == "" {
		b.fail(errors.New("empty field name"))
		return b
	}
	if b.byField[field] {
		b.fail(fmt.Errorf("field %q declared twice", field))
		return b
	}
	b.byField[field] = true

	var o ber.OID
	if oid != "" {
		var err error
		if o, err = ber.ParseOID(oid); err != nil {
			b.fail(fmt.Errorf("field %q: %w", field, err))
			return b
		}
	}
	b.rules = append(b.rules, rule[T]{field: field, oid: o, set: set})
	return b
}

// bind adds an OID-bound rule whose coercion is conv.
func bind[T, V any](b *Builder[T], field, oid string, conv func(ber.Value) (V, bool), set func(*T, V)) *Builder[T] {
	if oid == "" {
		b.fail(fmt.Errorf("field %q: missing oid", field))
		return b
	}
	return b.add(field, oid, func(t *T, _ input, vb datagram.VarBind) bool {
		v, ok := conv(vb.Value)
		if ok {
			set(t, v)
		}
		return ok
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// OID-bound fields
// ─────────────────────────────────────────────────────────────────────────────

// Integer binds a signed field. Unsigned values up to MaxInt64 widen.
func (b *Builder[T]) Integer(field, oid string, set func(*T, int64)) *Builder[T] {
	return bind(b, field, oid, toInt64, set)
}

// Unsigned binds an unsigned field. Non-negative INTEGER values widen.
func (b *Builder[T]) Unsigned(field, oid string, set func(*T, uint64)) *Builder[T] {
	return bind(b, field, oid, toUint64, set)
}

// String binds a text field.
func (b *Builder[T]) String(field, oid string, set func(*T, string)) *Builder[T] {
	return bind(b, field, oid, toString, set)
}

// Bytes binds a raw octet field.
func (b *Builder[T]) Bytes(field, oid string, set func(*T, []byte)) *Builder[T] {
	return bind(b, field, oid, toBytes, set)
}

// ObjectID binds an OID-valued field.
func (b *Builder[T]) ObjectID(field, oid string, set func(*T, ber.OID)) *Builder[T] {
	return bind(b, field, oid, toOID, set)
}

// IPAddress binds an address field.
func (b *Builder[T]) IPAddress(field, oid string, set func(*T, netip.Addr)) *Builder[T] {
	return bind(b, field, oid, toIP, set)
}

// VarBind binds the whole matching var-binding, tag included, without
// coercion.
func (b *Builder[T]) VarBind(field, oid string, set func(*T, datagram.VarBind)) *Builder[T] {
	if oid == "" {
		b.fail(fmt.Errorf("field %q: missing oid", field))
		return b
	}
	return b.add(field, oid, func(t *T, _ input, vb datagram.VarBind) bool {
		set(t, vb)
		return true
	})
}

// Number binds any integer-kinded field, including named enum types, by
// underlying value. Values that do not fit N are rejected.
func Number[T any, N Integer](b *Builder[T], field, oid string, set func(*T, N)) *Builder[T] {
	return bind(b, field, oid, toNumber[N], set)
}

// ─────────────────────────────────────────────────────────────────────────────
// Envelope-bound fields
// ─────────────────────────────────────────────────────────────────────────────

// SourceAddress binds the datagram's source address as an address value.
func (b *Builder[T]) SourceAddress(field string, set func(*T, netip.Addr)) *Builder[T] {
	return b.add(field, "", func(t *T, in input, _ datagram.VarBind) bool {
		a, ok := parseSourceAddress(sourceOf(in))
		if ok {
			set(t, a)
		}
		return ok
	})
}

// SourceAddressString binds the datagram's source address verbatim.
func (b *Builder[T]) SourceAddressString(field string, set func(*T, string)) *Builder[T] {
	return b.add(field, "", func(t *T, in input, _ datagram.VarBind) bool {
		set(t, sourceOf(in))
		return true
	})
}

// ReceivedTime binds the envelope's received timestamp.
func (b *Builder[T]) ReceivedTime(field string, set func(*T, time.Time)) *Builder[T] {
	return b.add(field, "", func(t *T, in input, _ datagram.VarBind) bool {
		set(t, in.env.ReceivedTime)
		return true
	})
}

// Objects binds the full ordered var-binding list, header bindings included.
func (b *Builder[T]) Objects(field string, set func(*T, []datagram.VarBind)) *Builder[T] {
	return b.add(field, "", func(t *T, in input, _ datagram.VarBind) bool {
		set(t, in.dg.VarBinds)
		return true
	})
}

func sourceOf(in input) string {
	if in.dg.SourceAddress != "" {
		return in.dg.SourceAddress
	}
	return in.env.Source
}

// ─────────────────────────────────────────────────────────────────────────────
// Build
// ─────────────────────────────────────────────────────────────────────────────

// Build validates the description and freezes it.
func (b *Builder[T]) Build() (Descriptor, error) {
	if b.id == "" {
		return Descriptor{}, errors.New("typemap: descriptor has no type id")
	}
	if b.err != nil {
		return Descriptor{}, fmt.Errorf("typemap: %s: %w", b.id, b.err)
	}

	rules := append([]rule[T](nil), b.rules...)
	newT := b.newT
	fields := make([]string, len(rules))
	for i, r := range rules {
		fields[i] = r.field
	}

	return Descriptor{
		ID:      b.id,
		TrapOID: b.trap.Clone(),
		Fields:  fields,
		compile: func(miss func(string)) Transform {
			return func(env *envelope.Envelope) any {
				dg, ok := env.Datagram()
				if !ok {
					return nil
				}
				in := input{env: env, dg: dg}
				t := newT()
				for _, r := range rules {
					var vb datagram.VarBind
					if r.oid != nil {
						if vb, ok = dg.Find(r.oid); !ok {
							continue
						}
					}
					if !r.set(t, in, vb) {
						miss(r.field)
					}
				}
				return t
			}
		},
	}, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder[T]) MustBuild() Descriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
