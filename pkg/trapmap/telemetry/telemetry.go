// Package telemetry exposes the trap pipeline's counters to Prometheus.
//
// A Metrics value owns its own registry, so several can coexist in one
// process (tests, embedded use). It implements trapreceiver.Counters and
// typemap.Observer and is passed to both directly. A nil *Metrics is valid
// and records nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpbank/snmp_trapmap/typemap"
)

const namespace = "trapmap"

// Metrics holds the pipeline counters.
type Metrics struct {
	registry *prometheus.Registry

	received     prometheus.Counter
	decodeErrors prometheus.Counter
	rejected     prometheus.Counter
	dropped      prometheus.Counter
	mapped       *prometheus.CounterVec
	unregistered prometheus.Counter
	misses       *prometheus.CounterVec
	archived     prometheus.Counter
	archiveErrs  prometheus.Counter
	sendErrors   prometheus.Counter
	types        prometheus.Gauge
}

// New creates and registers all counters. Go runtime and process collectors
// are registered alongside them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_received_total",
			Help:      "Datagrams read from the trap socket.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Datagrams that failed BER decoding.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_rejected_total",
			Help:      "Decoded datagrams rejected by PDU type or community.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_dropped_total",
			Help:      "Traps dropped because the pipeline buffer was full.",
		}),
		mapped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_mapped_total",
			Help:      "Traps mapped onto a registered type.",
		}, []string{"type_id"}),
		unregistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_unregistered_total",
			Help:      "Traps whose trap OID no registered type claims.",
		}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coercion_misses_total",
			Help:      "Fields left at their default because the value could not be coerced.",
		}, []string{"type_id", "field"}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_archived_total",
			Help:      "Envelope records written to the archive.",
		}),
		archiveErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_errors_total",
			Help:      "Envelope records that could not be archived.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Formatted events the transport failed to write.",
		}),
		types: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_types",
			Help:      "Trap types currently registered in the type map.",
		}),
	}

	m.registry.MustRegister(
		m.received, m.decodeErrors, m.rejected, m.dropped,
		m.mapped, m.unregistered, m.misses,
		m.archived, m.archiveErrs, m.sendErrors, m.types,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the counters live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ─────────────────────────────────────────────────────────────────────────────
// trapreceiver.Counters
// ─────────────────────────────────────────────────────────────────────────────

func (m *Metrics) TrapReceived() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *Metrics) DecodeFailed() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) TrapRejected() {
	if m != nil {
		m.rejected.Inc()
	}
}

func (m *Metrics) TrapDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// typemap.Observer
// ─────────────────────────────────────────────────────────────────────────────

// CoercionMiss counts a field left at its default.
func (m *Metrics) CoercionMiss(id typemap.TypeID, field string) {
	if m != nil {
		m.misses.WithLabelValues(string(id), field).Inc()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline outcomes
// ─────────────────────────────────────────────────────────────────────────────

// Mapped counts a trap mapped onto id.
func (m *Metrics) Mapped(id typemap.TypeID) {
	if m != nil {
		m.mapped.WithLabelValues(string(id)).Inc()
	}
}

func (m *Metrics) Unregistered() {
	if m != nil {
		m.unregistered.Inc()
	}
}

// Archived counts an archive write; err != nil counts a failure instead.
func (m *Metrics) Archived(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.archiveErrs.Inc()
		return
	}
	m.archived.Inc()
}

func (m *Metrics) SendFailed() {
	if m != nil {
		m.sendErrors.Inc()
	}
}

// SetRegisteredTypes records the size of the type map.
func (m *Metrics) SetRegisteredTypes(n int) {
	if m != nil {
		m.types.Set(float64(n))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTP
// ─────────────────────────────────────────────────────────────────────────────

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics and /healthz on addr until ctx is cancelled.
// It returns once the listener is bound; serving continues in the
// background. The returned address is the bound one (useful with ":0").
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) (net.Addr, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("telemetry: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("telemetry: serving metrics", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("telemetry: server failed", "error", err.Error())
		}
	}()
	return ln.Addr(), nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
