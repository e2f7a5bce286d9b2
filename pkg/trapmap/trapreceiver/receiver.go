// Package trapreceiver implements the UDP SNMP trap listener.
//
// Pipeline position:
//
//	UDP port 162  →  [TrapReceiver]  →  chan *envelope.Envelope  →  app mapper
//
// Two backends are available. The native backend reads raw datagrams from a
// net.PacketConn and decodes them with the snmp/datagram codec; it never
// answers the sender. The gosnmp backend uses gosnmp's TrapListener as the
// UDP engine, which also acknowledges informs, and converts its packets with
// snmp/interop.
package trapreceiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_trapmap/envelope"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
	"github.com/vpbank/snmp_trapmap/snmp/interop"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Backend selects the UDP engine.
type Backend string

const (
	BackendNative Backend = "native"
	BackendGoSNMP Backend = "gosnmp"
)

// Config controls the TrapReceiver behaviour.
type Config struct {
	// ListenAddr is the UDP address to bind to (default "0.0.0.0:162").
	ListenAddr string

	// Backend selects the UDP engine (default BackendNative).
	Backend Backend

	// OutputBufferSize is the capacity of the output channel (default 10000).
	OutputBufferSize int

	// Community is the SNMP community string for v1/v2c source validation.
	// If empty, all communities are accepted.
	Community string

	// SNMPVersion is the version the gosnmp backend accepts (default
	// gosnmp.Version2c). The native backend accepts v1 and v2c.
	SNMPVersion gosnmp.SnmpVersion

	// MaxDatagramSize is the native backend's read buffer (default 65535).
	MaxDatagramSize int

	// CloseTimeout is the maximum time to wait for the gosnmp socket to close
	// gracefully (default 3 s, matching gosnmp's default).
	CloseTimeout time.Duration

	// DecodeFunc replaces datagram.DecodeFrom in the native backend. Used in
	// tests.
	DecodeFunc DecodeFunc

	// ListenFunc opens the native backend's socket (default
	// net.ListenConfig.ListenPacket). Used in tests.
	ListenFunc ListenFunc

	// Counters receives per-datagram outcomes. Optional.
	Counters Counters
}

// DecodeFunc is the signature of the datagram decoder.
type DecodeFunc func(b []byte, source string, received time.Time) (*datagram.Datagram, error)

// ListenFunc is the signature of net.ListenConfig.ListenPacket.
type ListenFunc func(ctx context.Context, network, address string) (net.PacketConn, error)

// Read errors other than a closed socket are retried after a delay that
// doubles from minReadBackoff up to maxReadBackoff.
const (
	minReadBackoff = 5 * time.Millisecond
	maxReadBackoff = time.Second
)

// Counters is implemented by the telemetry layer.
type Counters interface {
	TrapReceived()
	DecodeFailed()
	TrapRejected()
	TrapDropped()
}

type nopCounters struct{}

func (nopCounters) TrapReceived() {}
func (nopCounters) DecodeFailed() {}
func (nopCounters) TrapRejected() {}
func (nopCounters) TrapDropped()  {}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ListenAddr == "" {
		out.ListenAddr = "0.0.0.0:162"
	}
	if out.Backend == "" {
		out.Backend = BackendNative
	}
	if out.OutputBufferSize <= 0 {
		out.OutputBufferSize = 10_000
	}
	if out.SNMPVersion == 0 {
		out.SNMPVersion = gosnmp.Version2c
	}
	if out.MaxDatagramSize <= 0 {
		out.MaxDatagramSize = 65535
	}
	if out.CloseTimeout == 0 {
		out.CloseTimeout = 3 * time.Second
	}
	if out.DecodeFunc == nil {
		out.DecodeFunc = datagram.DecodeFrom
	}
	if out.ListenFunc == nil {
		var lc net.ListenConfig
		out.ListenFunc = lc.ListenPacket
	}
	if out.Counters == nil {
		out.Counters = nopCounters{}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// TrapReceiver
// ─────────────────────────────────────────────────────────────────────────────

// TrapReceiver listens on UDP for SNMP traps and informs, wraps each decoded
// datagram in an envelope, and sends it on its output channel.
type TrapReceiver struct {
	cfg    Config
	logger *slog.Logger

	output chan *envelope.Envelope // produced here, consumed downstream

	conn     net.PacketConn       // native backend
	listener *gosnmp.TrapListener // gosnmp backend

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a TrapReceiver with the given configuration.
func New(cfg Config, logger *slog.Logger) *TrapReceiver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	c := cfg.withDefaults()
	return &TrapReceiver{
		cfg:    c,
		logger: logger,
		output: make(chan *envelope.Envelope, c.OutputBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Output returns the read-only channel that delivers received traps.
// The channel is closed when the TrapReceiver stops.
func (r *TrapReceiver) Output() <-chan *envelope.Envelope {
	return r.output
}

// ListenAddr returns the configured listen address.
func (r *TrapReceiver) ListenAddr() string {
	return r.cfg.ListenAddr
}

// Addr returns the bound address once the native backend is listening, so a
// ":0" port can be discovered. Otherwise it returns ListenAddr.
func (r *TrapReceiver) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn.LocalAddr().String()
	}
	return r.cfg.ListenAddr
}

// Start begins listening for traps. It blocks until the listener is ready
// (or until ctx is cancelled). Traps are dispatched to Output()
// asynchronously. Start returns an error if the listener cannot bind to the
// configured address.
//
// Call Stop (or cancel ctx) to terminate.
func (r *TrapReceiver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("trapreceiver: already running")
	}
	if r.stopped {
		r.mu.Unlock()
		return errors.New("trapreceiver: stopped receivers cannot be restarted")
	}
	r.running = true
	r.mu.Unlock()

	var err error
	switch r.cfg.Backend {
	case BackendNative:
		err = r.startNative(ctx)
	case BackendGoSNMP:
		err = r.startGoSNMP(ctx)
	default:
		err = fmt.Errorf("trapreceiver: unknown backend %q", r.cfg.Backend)
	}
	if err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}

	// Goroutine: stop when ctx is cancelled.
	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-r.stopCh:
		}
	}()

	return nil
}

func (r *TrapReceiver) startNative(ctx context.Context) error {
	conn, err := r.cfg.ListenFunc(ctx, "udp", r.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("trapreceiver: listen %s: %w", r.cfg.ListenAddr, err)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	r.logger.Info("trapreceiver: listening", "addr", conn.LocalAddr().String(), "backend", BackendNative)

	go func() {
		defer close(r.doneCh)
		r.readLoop(conn)
	}()
	return nil
}

// readLoop runs until conn is closed or Stop is called. Persistent read
// errors back off instead of spinning.
func (r *TrapReceiver) readLoop(conn net.PacketConn) {
	buf := make([]byte, r.cfg.MaxDatagramSize)
	var delay time.Duration
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = minReadBackoff
			} else {
				delay *= 2
			}
			if delay > maxReadBackoff {
				delay = maxReadBackoff
			}
			r.logger.Warn("trapreceiver: read error", "error", err, "retry_in", delay)
			select {
			case <-r.stopCh:
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		r.cfg.Counters.TrapReceived()

		dg, err := r.cfg.DecodeFunc(buf[:n], addr.String(), time.Now().UTC())
		if err != nil {
			r.cfg.Counters.DecodeFailed()
			r.logger.Warn("trapreceiver: decode error", "remote", addr.String(), "bytes", n, "error", err)
			continue
		}
		r.deliver(dg)
	}
}

func (r *TrapReceiver) startGoSNMP(ctx context.Context) error {
	tl := gosnmp.NewTrapListener()
	tl.Params = &gosnmp.GoSNMP{
		Version:   r.cfg.SNMPVersion,
		Community: r.cfg.Community,
		Logger:    gosnmp.NewLogger(slogAdapter{r.logger}),
	}
	tl.CloseTimeout = r.cfg.CloseTimeout
	tl.OnNewTrap = r.handleTrap

	r.mu.Lock()
	r.listener = tl
	r.mu.Unlock()

	// errCh receives the first error from tl.Listen (which blocks).
	errCh := make(chan error, 1)
	go func() {
		defer close(r.doneCh)
		errCh <- tl.Listen(r.cfg.ListenAddr)
	}()

	// Wait for the listener to be ready or for an early bind error.
	select {
	case <-tl.Listening():
		r.logger.Info("trapreceiver: listening", "addr", r.cfg.ListenAddr, "backend", BackendGoSNMP)
		return nil
	case err := <-errCh:
		return fmt.Errorf("trapreceiver: listen %s: %w", r.cfg.ListenAddr, err)
	case <-ctx.Done():
		tl.Close()
		return ctx.Err()
	}
}

// handleTrap is the gosnmp TrapHandlerFunc callback. It runs in the gosnmp
// internal listener goroutine so it must not block for long.
func (r *TrapReceiver) handleTrap(pkt *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	r.cfg.Counters.TrapReceived()
	dg, err := interop.FromGoSNMP(pkt, addr.String(), time.Now().UTC())
	if err != nil {
		r.cfg.Counters.DecodeFailed()
		r.logger.Warn("trapreceiver: convert error", "remote", addr.String(), "error", err)
		return
	}
	r.deliver(dg)
}

// deliver filters dg and pushes it downstream without blocking.
func (r *TrapReceiver) deliver(dg *datagram.Datagram) {
	if !dg.PDUType.IsNotification() {
		r.cfg.Counters.TrapRejected()
		r.logger.Debug("trapreceiver: ignoring non-notification PDU",
			"remote", dg.SourceAddress,
			"pdu_type", dg.PDUType.String(),
		)
		return
	}
	if r.cfg.Community != "" && dg.Header.Community != r.cfg.Community {
		r.cfg.Counters.TrapRejected()
		r.logger.Warn("trapreceiver: community mismatch — trap rejected", "remote", dg.SourceAddress)
		return
	}

	select {
	case r.output <- envelope.FromDatagram(dg):
	default:
		r.cfg.Counters.TrapDropped()
		trapOID, _ := dg.TrapOID()
		r.logger.Warn("trapreceiver: output buffer full — trap dropped",
			"remote", dg.SourceAddress,
			"trap_oid", trapOID.String(),
		)
	}
}

// Stop shuts down the UDP listener and closes the output channel. It is safe
// to call Stop multiple times.
func (r *TrapReceiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.running = false
	r.stopped = true

	if r.conn != nil {
		r.conn.Close()
	}
	if r.listener != nil {
		r.listener.Close()
	}
	close(r.stopCh)

	// Wait for the listen goroutine to exit before closing output so that no
	// further writes happen after close.
	<-r.doneCh
	close(r.output)

	r.logger.Info("trapreceiver: stopped")
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }

// slogAdapter bridges slog.Logger to gosnmp's Logger interface (Printf-style).
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Print(v ...interface{}) {
	a.l.Debug(fmt.Sprint(v...))
}

func (a slogAdapter) Printf(format string, v ...interface{}) {
	a.l.Debug(fmt.Sprintf(format, v...))
}
