// Package app wires the trap mapper pipeline stages together and manages
// their lifecycle.
//
// Pipeline:
//
//	TrapReceiver → [envelopes] → Mapper workers (typemap, archive) →
//	Formatter → [formattedCh] → Transport
//
// Trap definitions are loaded into a typemap.Map shared by all mapper
// workers; the reloader keeps it current while the pipeline runs. A single
// transport goroutine writes all output.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/vpbank/snmp_trapmap/archive"
	"github.com/vpbank/snmp_trapmap/envelope"
	jsonformat "github.com/vpbank/snmp_trapmap/format/json"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/config"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/reload"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/telemetry"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/trapreceiver"
	filetransport "github.com/vpbank/snmp_trapmap/transport/file"
	"github.com/vpbank/snmp_trapmap/typemap"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the top-level settings for the trap mapper application.
// Zero-value fields fall back to documented defaults.
type Config struct {
	// ConfigPaths locates the YAML trap definitions.
	// Use config.PathsFromEnv() to populate from environment variables.
	ConfigPaths config.Paths

	// MapperID identifies this instance in output metadata.
	// Default: the hostname.
	MapperID string

	// MapperWorkers is the number of concurrent mapping goroutines.
	// Default: runtime.NumCPU().
	MapperWorkers int

	// BufferSize is the capacity of the formatted-output channel.
	// Default: 10000.
	BufferSize int

	// Receiver configures the trap listener. Its Counters field is set by
	// the app when metrics are enabled.
	Receiver trapreceiver.Config

	// Types are registered in addition to the YAML definitions. Reloads
	// never remove them.
	Types []typemap.Descriptor

	// WatchDefinitions re-registers definitions when files change.
	WatchDefinitions bool

	// ReloadDebounce is the quiet period before a reload. Default 500 ms.
	ReloadDebounce time.Duration

	// ArchivePath enables the SQLite archive when non-empty.
	ArchivePath string

	// MetricsAddr enables the Prometheus endpoint when non-empty.
	MetricsAddr string

	// PrettyPrint enables indented JSON output.
	PrettyPrint bool

	// EventWriter receives mapped events. nil = os.Stdout.
	EventWriter io.Writer

	// UnregisteredWriter, when set, receives unregistered traps separately
	// from mapped events.
	UnregisteredWriter io.Writer
}

func (c *Config) withDefaults() {
	if c.MapperID == "" {
		name, _ := os.Hostname()
		if name == "" {
			name = "trapmap"
		}
		c.MapperID = name
	}
	if c.MapperWorkers <= 0 {
		c.MapperWorkers = runtime.NumCPU()
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 10_000
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App orchestrates the trap mapper pipeline. Create one with New, start it
// with Start, and stop it with Stop (or cancel the context).
type App struct {
	cfg    Config
	logger *slog.Logger

	types    *typemap.Map
	metrics  *telemetry.Metrics
	reloader *reload.Reloader
	store    *archive.Store

	receiver  *trapreceiver.TrapReceiver
	mapper    *Mapper
	formatter *jsonformat.JSONFormatter
	transport filetransport.Transport

	formattedCh chan []byte
	metricsAddr string

	cancel   context.CancelFunc
	wg       sync.WaitGroup // tracks pipeline goroutines
	formatWg sync.WaitGroup // tracks mapper workers feeding formattedCh
}

// New constructs an App. It does not start anything; call Start for that.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Types returns the live type map. It is nil before Start.
func (a *App) Types() *typemap.Map { return a.types }

// ReceiverAddr returns the bound trap address. It is empty before Start.
func (a *App) ReceiverAddr() string {
	if a.receiver == nil {
		return ""
	}
	return a.receiver.Addr()
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (a *App) MetricsAddr() string { return a.metricsAddr }

// Start loads trap definitions, constructs all pipeline stages and launches
// the goroutines that connect them. It returns an error if the definitions
// fail to load or a listener cannot bind.
//
// The caller must eventually call Stop (or cancel the passed-in context's
// parent) to release resources.
func (a *App) Start(ctx context.Context) error {
	pipeCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.build(pipeCtx); err != nil {
		cancel()
		a.wg.Wait()
		a.release()
		return err
	}

	// The receiver buffers until the mapper workers below start reading.
	if err := a.receiver.Start(pipeCtx); err != nil {
		cancel()
		a.wg.Wait()
		a.release()
		return fmt.Errorf("app: start trap receiver: %w", err)
	}

	// All Add() calls happen before the transport stage starts waiting on
	// formatWg, otherwise formattedCh could close before any worker ran.
	a.formatWg.Add(a.cfg.MapperWorkers)
	a.startTransportStage()
	for i := 0; i < a.cfg.MapperWorkers; i++ {
		a.startMapperStage(pipeCtx, i)
	}

	a.logger.Info("app: pipeline running",
		"trap_addr", a.receiver.Addr(),
		"mapper_workers", a.cfg.MapperWorkers,
		"types", len(a.types.Types()),
		"archive", a.cfg.ArchivePath != "",
		"metrics_addr", a.metricsAddr,
	)
	return nil
}

// build constructs every component in reverse pipeline order.
func (a *App) build(ctx context.Context) error {
	if a.cfg.MetricsAddr != "" {
		a.metrics = telemetry.New()
		addr, err := a.metrics.Serve(ctx, a.cfg.MetricsAddr, a.logger)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.metricsAddr = addr.String()
	}

	a.types = typemap.New(typemap.WithLogger(a.logger), typemap.WithObserver(a.metrics))
	for _, d := range a.cfg.Types {
		if err := a.types.Register(d); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	a.logger.Info("app: loading trap definitions", "dir", a.cfg.ConfigPaths.Traps)
	a.reloader = reload.New(reload.Config{
		Dir:      a.cfg.ConfigPaths.Traps,
		Debounce: a.cfg.ReloadDebounce,
		OnReload: func(reload.Result) { a.metrics.SetRegisteredTypes(len(a.types.Types())) },
	}, a.types, a.logger)
	if res := a.reloader.Reload(); res.Err != nil {
		return fmt.Errorf("app: load trap definitions: %w", res.Err)
	}
	if a.cfg.WatchDefinitions {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			_ = a.reloader.Run(ctx)
		}()
	}

	if a.cfg.ArchivePath != "" {
		store, err := archive.Open(a.cfg.ArchivePath, a.logger)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.store = store
	}

	if a.cfg.UnregisteredWriter != nil {
		a.transport = filetransport.NewSplit(filetransport.SplitConfig{
			EventWriter:        a.cfg.EventWriter,
			UnregisteredWriter: a.cfg.UnregisteredWriter,
		}, a.logger)
	} else {
		a.transport = filetransport.New(filetransport.Config{Writer: a.cfg.EventWriter}, a.logger)
	}
	a.formatter = jsonformat.New(jsonformat.Config{PrettyPrint: a.cfg.PrettyPrint}, a.logger)

	a.mapper = &Mapper{
		Types:    a.types,
		Archive:  a.store,
		Metrics:  a.metrics,
		MapperID: a.cfg.MapperID,
		Logger:   a.logger,
	}

	rcfg := a.cfg.Receiver
	if a.metrics != nil && rcfg.Counters == nil {
		rcfg.Counters = a.metrics
	}
	a.receiver = trapreceiver.New(rcfg, a.logger)

	a.formattedCh = make(chan []byte, a.cfg.BufferSize)
	return nil
}

// Stop performs a graceful shutdown.
//
// Shutdown order:
//  1. Cancel the pipeline context (stops the reloader and metrics server).
//  2. Stop the trap receiver, which closes its output channel.
//  3. Mapper workers drain the channel and exit → formattedCh closes →
//     the transport goroutine drains and exits.
//  4. Close the transport and the archive.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	if a.receiver != nil {
		a.receiver.Stop()
	}
	a.wg.Wait()
	a.release()

	a.logger.Info("app: shutdown complete")
}

func (a *App) release() {
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			a.logger.Error("app: transport close error", "error", err.Error())
		}
		a.transport = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("app: archive close error", "error", err.Error())
		}
		a.store = nil
	}
}

// Reload re-reads the trap definitions into the live type map.
func (a *App) Reload() error {
	if a.reloader == nil {
		return fmt.Errorf("app: not started")
	}
	if res := a.reloader.Reload(); res.Err != nil {
		return fmt.Errorf("app: reload trap definitions: %w", res.Err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline stage goroutines
// ─────────────────────────────────────────────────────────────────────────────

// startMapperStage reads envelopes from the receiver, maps and formats each
// one and sends the JSON to formattedCh. formatWg must already be
// incremented by the caller.
func (a *App) startMapperStage(ctx context.Context, worker int) {
	in := a.receiver.Output()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.formatWg.Done()

		for env := range in {
			data, ok := a.handle(ctx, env, worker)
			if ok {
				a.formattedCh <- data
			}
		}
	}()
}

func (a *App) handle(ctx context.Context, env *envelope.Envelope, worker int) ([]byte, bool) {
	ev, err := a.mapper.Map(ctx, env)
	if err != nil {
		a.logger.Warn("app: map error", "worker", worker, "source", env.Source, "error", err.Error())
		return nil, false
	}
	data, err := a.formatter.Format(ev)
	if err != nil {
		a.logger.Warn("app: format error",
			"source", ev.Source,
			"type_id", ev.TypeID,
			"error", err.Error(),
		)
		return nil, false
	}
	return data, true
}

// startTransportStage reads formatted bytes from formattedCh and writes them
// via the transport. It also owns the goroutine that closes formattedCh after
// all mapper workers finish.
func (a *App) startTransportStage() {
	go func() {
		a.formatWg.Wait()
		close(a.formattedCh)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		for data := range a.formattedCh {
			if err := a.transport.Send(data); err != nil {
				a.metrics.SendFailed()
				a.logger.Error("app: transport send error",
					"error", err.Error(),
					"bytes", len(data),
				)
			}
		}
	}()
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
