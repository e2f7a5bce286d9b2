// Package json implements the JSON output formatter for the trap mapper
// pipeline.
//
// Pipeline position:
//
//	app mapper → format/json → transport/file
//
// The formatter converts a models.TrapEvent into a JSON byte slice. All json
// struct tags are declared on the model types themselves; mapped objects
// built from Go types serialise through their own exported fields, and
// typemap.Record objects serialise as plain JSON objects.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vpbank/snmp_trapmap/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises a models.TrapEvent into a byte slice.
type Formatter interface {
	Format(event *models.TrapEvent) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	// Use false (default) for line-oriented output.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter implements Formatter using encoding/json. It is safe for
// concurrent use by multiple goroutines; all fields are immutable after
// construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted so the formatter never panics on a nil receiver.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format serialises event to JSON. A registered event looks like:
//
//	{
//	  "timestamp": "2026-02-26T10:30:00.123Z",
//	  "occurrence_time": "2026-02-26T10:30:00.123Z",
//	  "type_id": "fake-trap",
//	  "source": "192.0.2.17:1620",
//	  "protocol": "snmp",
//	  "trap_oid": "1.3.6.1.4.1.500.12",
//	  "object": { … },
//	  "metadata": { … }
//	}
//
// An unregistered event carries "unregistered_trap" instead of "object".
func (f *JSONFormatter) Format(event *models.TrapEvent) ([]byte, error) {
	if event == nil {
		return nil, errors.New("format/json: event must not be nil")
	}

	var (
		data []byte
		err  error
	)

	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(event, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(event)
	}

	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"type_id", event.TypeID,
			"trap_oid", event.TrapOID,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted event",
		"type_id", event.TypeID,
		"source", event.Source,
		"registered", event.IsRegistered(),
		"bytes", len(data),
	)

	return data, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
