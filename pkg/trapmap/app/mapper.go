package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vpbank/snmp_trapmap/archive"
	"github.com/vpbank/snmp_trapmap/envelope"
	"github.com/vpbank/snmp_trapmap/models"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/telemetry"
	"github.com/vpbank/snmp_trapmap/snmp/trap"
	"github.com/vpbank/snmp_trapmap/typemap"
)

// errNotDatagram is returned for envelopes that carry no SNMP datagram.
var errNotDatagram = errors.New("app: envelope payload is not a datagram")

// Mapper turns one envelope into a TrapEvent: it correlates the trap with a
// registered type, falls back to the generic rendering when none claims
// it, and archives the envelope. All dependencies except the type map are
// optional.
type Mapper struct {
	Types    *typemap.Map
	Archive  *archive.Store
	Metrics  *telemetry.Metrics
	MapperID string
	Logger   *slog.Logger
}

// Map builds the event for env. The archive write does not observe ctx
// cancellation so that envelopes drained during shutdown are still stored.
func (m *Mapper) Map(ctx context.Context, env *envelope.Envelope) (*models.TrapEvent, error) {
	dg, ok := env.Datagram()
	if !ok {
		return nil, errNotDatagram
	}

	ev := &models.TrapEvent{
		Timestamp:      env.ReceivedTime,
		OccurrenceTime: env.OccurrenceTime,
		Source:         env.Source,
		Protocol:       env.Protocol,
		Metadata:       models.EventMetadata{MapperID: m.MapperID},
	}
	if key := m.Types.GetInputKey(env); !key.IsZero() {
		ev.TrapOID = key.String()
	}

	if obj, id, ok := m.Types.Apply(env); ok {
		ev.TypeID = string(id)
		ev.Object = obj
		m.Metrics.Mapped(id)
	} else {
		generic, err := trap.Parse(dg)
		if err != nil {
			return nil, fmt.Errorf("app: render unregistered trap: %w", err)
		}
		ev.Unregistered = &generic
		m.Metrics.Unregistered()
	}

	if m.Archive != nil {
		err := m.Archive.AppendEnvelope(context.WithoutCancel(ctx), env)
		m.Metrics.Archived(err)
		if err != nil {
			m.logger().Warn("app: archive error", "source", env.Source, "error", err.Error())
		} else {
			ev.Metadata.Archived = true
		}
	}
	return ev, nil
}

func (m *Mapper) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return m.Logger
}
