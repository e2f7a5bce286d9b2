// Package typemap maps envelopes carrying decoded SNMP trap datagrams onto
// registered Go types.
//
// Target types are described with a Builder rather than introspected: each
// field is bound to an extraction rule (a var-binding OID, the source
// address, the received time or the whole var-binding list). A Map owns the
// registered descriptors, indexes them by trap OID and caches one compiled
// Transform per type for its lifetime.
//
// Values that cannot be coerced to a field's type leave the field at its
// zero value; the miss is reported to the Map's Observer and the rest of the
// object is still populated.
package typemap

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vpbank/snmp_trapmap/envelope"
	"github.com/vpbank/snmp_trapmap/snmp/ber"
)

// TypeID is the stable identifier a target type is registered under.
type TypeID string

// Transform builds a populated instance from an envelope. It returns nil
// for a nil envelope or one whose payload is not a datagram.
type Transform func(*envelope.Envelope) any

// Observer receives mapping diagnostics. Implementations must be safe for
// concurrent use.
type Observer interface {
	CoercionMiss(id TypeID, field string)
}

type nopObserver struct{}

func (nopObserver) CoercionMiss(TypeID, string) {}

// ErrUnknownType is returned for operations on a TypeID that is not
// registered.
var ErrUnknownType = errors.New("typemap: unknown type")

type entry struct {
	desc    Descriptor
	version uint64
}

// Map is the registry and compiled-transform cache. The zero value is not
// usable; construct with New. A Map is safe for concurrent use and is meant
// to be shared by pointer between pipeline workers.
type Map struct {
	logger   *slog.Logger
	observer Observer

	mu      sync.RWMutex
	entries map[TypeID]entry
	byTrap  map[string]TypeID
	cache   map[TypeID]Transform
	version uint64

	group singleflight.Group
}

// Option configures a Map.
type Option func(*Map)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(m *Map) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver sets the diagnostics observer.
func WithObserver(o Observer) Option {
	return func(m *Map) {
		if o != nil {
			m.observer = o
		}
	}
}

// New returns an empty Map.
func New(opts ...Option) *Map {
	m := &Map{
		logger:   slog.New(slog.NewTextHandler(noopWriter{}, nil)),
		observer: nopObserver{},
		entries:  make(map[TypeID]entry),
		byTrap:   make(map[string]TypeID),
		cache:    make(map[TypeID]Transform),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Register adds d, replacing any descriptor with the same ID and evicting
// its cached transform. Once Register returns, GetTransform for d.ID only
// yields transforms compiled from d. Two types may not claim the same trap
// OID.
func (m *Map) Register(d Descriptor) error {
	if d.ID == "" {
		return errors.New("typemap: register: empty type id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !d.TrapOID.IsZero() {
		if owner, ok := m.byTrap[d.TrapOID.Key()]; ok && owner != d.ID {
			return fmt.Errorf("typemap: register %s: trap %s already registered by %s", d.ID, d.TrapOID, owner)
		}
	}
	if old, ok := m.entries[d.ID]; ok && !old.desc.TrapOID.IsZero() {
		delete(m.byTrap, old.desc.TrapOID.Key())
	}
	if !d.TrapOID.IsZero() {
		m.byTrap[d.TrapOID.Key()] = d.ID
	}

	m.version++
	m.entries[d.ID] = entry{desc: d, version: m.version}
	delete(m.cache, d.ID)
	// Callers arriving from here on must not join a compile of the old
	// descriptor.
	m.group.Forget(string(d.ID))

	m.logger.Debug("typemap: registered type", "type_id", d.ID, "trap_oid", d.TrapOID.String(), "fields", len(d.Fields))
	return nil
}

// Unregister removes id. It reports whether the type was registered.
func (m *Map) Unregister(id TypeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return false
	}
	if !e.desc.TrapOID.IsZero() {
		delete(m.byTrap, e.desc.TrapOID.Key())
	}
	delete(m.entries, id)
	delete(m.cache, id)
	m.group.Forget(string(id))
	m.logger.Debug("typemap: unregistered type", "type_id", id)
	return true
}

// Types returns the registered IDs in sorted order.
func (m *Map) Types() []TypeID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]TypeID, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetTypeKey returns the trap OID id is registered under. The zero OID is
// returned when id is unknown or declares no trap.
func (m *Map) GetTypeKey(id TypeID) ber.OID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	return e.desc.TypeKey()
}

// GetInputKey returns the trap OID carried by env's datagram, or the zero
// OID when there is none.
func (m *Map) GetInputKey(env *envelope.Envelope) ber.OID {
	dg, ok := env.Datagram()
	if !ok {
		return nil
	}
	key, _ := dg.TrapOID()
	return key
}

// Lookup returns the type registered under trap OID key.
func (m *Map) Lookup(key ber.OID) (TypeID, bool) {
	if key.IsZero() {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byTrap[key.Key()]
	return id, ok
}

// GetTransform returns the compiled transform for id, compiling it on first
// use. Concurrent first requests share one compilation. A transform compiled
// against a descriptor that was replaced meanwhile is returned to its
// callers but not cached.
func (m *Map) GetTransform(id TypeID) (Transform, bool) {
	m.mu.RLock()
	t, ok := m.cache[id]
	m.mu.RUnlock()
	if ok {
		return t, true
	}

	v, err, _ := m.group.Do(string(id), func() (any, error) {
		m.mu.RLock()
		if t, ok := m.cache[id]; ok {
			m.mu.RUnlock()
			return t, nil
		}
		e, ok := m.entries[id]
		m.mu.RUnlock()
		if !ok {
			return nil, ErrUnknownType
		}

		t := e.desc.Compile(func(field string) {
			m.observer.CoercionMiss(id, field)
		})

		m.mu.Lock()
		if cur, ok := m.entries[id]; ok && cur.version == e.version {
			m.cache[id] = t
		}
		m.mu.Unlock()

		m.logger.Debug("typemap: compiled transform", "type_id", id)
		return t, nil
	})
	if err != nil {
		return nil, false
	}
	return v.(Transform), true
}

// Apply correlates env with a registered type through its trap OID and
// transforms it. On success the instance is stored in env.PayloadInstance
// and env.TypeID is set.
func (m *Map) Apply(env *envelope.Envelope) (any, TypeID, bool) {
	id, ok := m.Lookup(m.GetInputKey(env))
	if !ok {
		return nil, "", false
	}
	t, ok := m.GetTransform(id)
	if !ok {
		return nil, "", false
	}
	obj := t(env)
	if obj == nil {
		return nil, "", false
	}
	env.PayloadInstance = obj
	env.TypeID = string(id)
	return obj, id, true
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
