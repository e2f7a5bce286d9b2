// Package file implements Transports that write formatted trap events as
// JSON lines to any io.Writer, typically os.Stdout or a RotatingFile.
//
// Pipeline position:
//
//	format/json → transport/file
//
// Each call to Send writes one record followed by a newline.
package file

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// Transport interface
// ─────────────────────────────────────────────────────────────────────────────

// Transport is the pipeline contract for all transport implementations.
// Send delivers one pre-formatted message (JSON bytes from format/json).
// Close flushes and releases resources.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config controls WriterTransport behaviour.
type Config struct {
	// Writer is the destination. nil defaults to os.Stdout.
	Writer io.Writer

	// Newline appended after each message. Default "\n".
	Newline string
}

// ─────────────────────────────────────────────────────────────────────────────
// lineWriter
// ─────────────────────────────────────────────────────────────────────────────

// lineWriter serialises writes of newline-terminated records to one
// destination and counts them.
type lineWriter struct {
	mu    sync.Mutex
	name  string
	w     io.Writer
	nl    []byte
	lines uint64
}

func newLineWriter(name string, w io.Writer, def io.Writer, nl string) *lineWriter {
	if w == nil {
		w = def
	}
	if nl == "" {
		nl = "\n"
	}
	return &lineWriter{name: name, w: w, nl: []byte(nl)}
}

func (lw *lineWriter) writeLine(data []byte, logger *slog.Logger) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	// One Write per record so a RotatingFile never splits a line.
	line := make([]byte, 0, len(data)+len(lw.nl))
	line = append(append(line, data...), lw.nl...)
	if _, err := lw.w.Write(line); err != nil {
		logger.Error("transport/file: write failed", "writer", lw.name, "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport/file: %s write: %w", lw.name, err)
	}
	lw.lines++

	logger.Debug("transport/file: sent message", "writer", lw.name, "bytes", len(data))
	return nil
}

func (lw *lineWriter) count() uint64 {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.lines
}

// closer returns the destination's io.Closer unless it is a standard stream.
func (lw *lineWriter) closer() io.Closer {
	if lw.w == os.Stdout || lw.w == os.Stderr {
		return nil
	}
	c, _ := lw.w.(io.Closer)
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// WriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// WriterTransport implements Transport by writing each message to an
// io.Writer followed by a configurable newline. It is safe for concurrent
// use; concurrent goroutines produce un-interleaved output.
type WriterTransport struct {
	out    *lineWriter
	logger *slog.Logger
}

// New constructs a WriterTransport.
//
//   - cfg.Writer defaults to os.Stdout when nil.
//   - cfg.Newline defaults to "\n" when empty.
//   - logger defaults to a no-op writer when nil.
func New(cfg Config, logger *slog.Logger) *WriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &WriterTransport{
		out:    newLineWriter("events", cfg.Writer, os.Stdout, cfg.Newline),
		logger: logger,
	}
}

// Send writes data followed by the configured newline.
func (t *WriterTransport) Send(data []byte) error {
	return t.out.writeLine(data, t.logger)
}

// Sent returns the number of messages written.
func (t *WriterTransport) Sent() uint64 { return t.out.count() }

// Close is a no-op for WriterTransport. The writer's lifetime is managed by
// whoever created it.
func (t *WriterTransport) Close() error {
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
