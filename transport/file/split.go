// Package file: split.go provides a Transport that writes mapped trap
// events and unregistered traps to separate destinations.
//
// Routing logic:
//   - JSON payloads containing an "unregistered_trap" key → unregistered writer
//   - Everything else (events mapped to a registered type) → event writer
//
// Both writers can be plain io.Writers (os.Stdout, *os.File) or RotatingFile
// instances for automatic size-based rotation.
package file

import (
	"bytes"
	"io"
	"log/slog"
	"os"
)

// ─────────────────────────────────────────────────────────────────────────────
// SplitConfig
// ─────────────────────────────────────────────────────────────────────────────

// SplitConfig controls SplitWriterTransport behaviour.
type SplitConfig struct {
	// EventWriter receives events mapped to a registered type.
	// nil defaults to os.Stdout.
	EventWriter io.Writer

	// UnregisteredWriter receives traps no registered type claims.
	// nil defaults to os.Stderr.
	UnregisteredWriter io.Writer

	// Newline appended after each message. Default "\n".
	Newline string
}

// ─────────────────────────────────────────────────────────────────────────────
// SplitWriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// SplitWriterTransport implements Transport by routing each JSON message to
// one of two writers. It is safe for concurrent use.
//
// Detection is a bytes.Contains check for the `"unregistered_trap"` key
// rather than full JSON unmarshalling, which keeps the hot path
// allocation-free.
type SplitWriterTransport struct {
	events       *lineWriter
	unregistered *lineWriter
	logger       *slog.Logger
}

// unregisteredMarker identifies unregistered-trap payloads. Every such
// models.TrapEvent JSON object contains this key.
var unregisteredMarker = []byte(`"unregistered_trap"`)

// NewSplit constructs a SplitWriterTransport.
//
//   - cfg.EventWriter defaults to os.Stdout when nil.
//   - cfg.UnregisteredWriter defaults to os.Stderr when nil.
//   - cfg.Newline defaults to "\n" when empty.
//   - logger defaults to a no-op logger when nil.
func NewSplit(cfg SplitConfig, logger *slog.Logger) *SplitWriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &SplitWriterTransport{
		events:       newLineWriter("events", cfg.EventWriter, os.Stdout, cfg.Newline),
		unregistered: newLineWriter("unregistered", cfg.UnregisteredWriter, os.Stderr, cfg.Newline),
		logger:       logger,
	}
}

// Send inspects data for the unregistered marker and routes it.
func (st *SplitWriterTransport) Send(data []byte) error {
	if bytes.Contains(data, unregisteredMarker) {
		return st.unregistered.writeLine(data, st.logger)
	}
	return st.events.writeLine(data, st.logger)
}

// Sent returns the number of messages written to each destination.
func (st *SplitWriterTransport) Sent() (events, unregistered uint64) {
	return st.events.count(), st.unregistered.count()
}

// Close closes any io.Closer writers (e.g. RotatingFile). Plain os.Stdout /
// os.Stderr are never closed.
func (st *SplitWriterTransport) Close() error {
	var firstErr error
	for _, lw := range []*lineWriter{st.events, st.unregistered} {
		c := lw.closer()
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
