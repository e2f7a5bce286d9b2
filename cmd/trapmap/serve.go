package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpbank/snmp_trapmap/pkg/trapmap/app"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/config"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/trapreceiver"
	filetransport "github.com/vpbank/snmp_trapmap/transport/file"
)

type serveFlags struct {
	mapperID string
	workers  int
	bufSize  int
	pretty   bool

	trapAddr      string
	trapBackend   string
	trapCommunity string

	metricsAddr string
	archivePath string

	cfgTraps       string
	watch          bool
	reloadDebounce time.Duration

	// File transport
	eventsPath       string
	splitFile        bool
	unregisteredPath string
	fileMaxBytes     int64
	fileMaxBackups   int
}

func newServeCmd(lf *logFlags) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive traps and write mapped events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := lf.logger()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), f, logger)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.mapperID, "mapper.id", "", "Mapper instance ID (default: hostname)")
	fl.IntVar(&f.workers, "mapper.workers", 0, "Number of mapping workers (default: number of CPUs)")
	fl.IntVar(&f.bufSize, "pipeline.buffer.size", 10000, "Channel buffer size")
	fl.BoolVar(&f.pretty, "format.pretty", false, "Pretty-print JSON output")

	fl.StringVar(&f.trapAddr, "trap.listen", "0.0.0.0:162", "Trap listener UDP address")
	fl.StringVar(&f.trapBackend, "trap.backend", string(trapreceiver.BackendNative), "UDP engine: native, gosnmp")
	fl.StringVar(&f.trapCommunity, "trap.community", "", "Accept only this community (default: any)")

	fl.StringVar(&f.metricsAddr, "metrics.listen", "", "Prometheus listen address, e.g. :9163 (default: disabled)")
	fl.StringVar(&f.archivePath, "archive.path", "", "SQLite archive of received traps (default: disabled)")

	fl.StringVar(&f.cfgTraps, "config.traps", "", "Override "+config.EnvTrapDefinitions)
	fl.BoolVar(&f.watch, "config.watch", true, "Reload trap definitions when files change")
	fl.DurationVar(&f.reloadDebounce, "config.watch.debounce", 500*time.Millisecond, "Quiet period before a reload")

	fl.StringVar(&f.eventsPath, "transport.file.events", "", "Output file for events (default: stdout)")
	fl.BoolVar(&f.splitFile, "transport.file.split", false, "Write unregistered traps to a separate file")
	fl.StringVar(&f.unregisteredPath, "transport.file.unregistered", "snmp_unregistered_traps.json", "Output file for unregistered traps")
	fl.Int64Var(&f.fileMaxBytes, "transport.file.max.bytes", 0, "Max file size in bytes before rotation (0=disabled)")
	fl.IntVar(&f.fileMaxBackups, "transport.file.max.backups", 5, "Max rotated backup files to keep (0=unlimited)")
	return cmd
}

func runServe(parent context.Context, f serveFlags, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	paths := config.PathsFromEnv()
	if f.cfgTraps != "" {
		paths.Traps = f.cfgTraps
	}

	eventW, closeEvents, err := openOutput(f.eventsPath, f, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	var unregW io.Writer
	if f.splitFile {
		w, closeUnreg, err := openOutput(f.unregisteredPath, f, logger)
		if err != nil {
			return err
		}
		defer closeUnreg()
		unregW = w
	}

	application := app.New(app.Config{
		ConfigPaths:   paths,
		MapperID:      f.mapperID,
		MapperWorkers: f.workers,
		BufferSize:    f.bufSize,
		Receiver: trapreceiver.Config{
			ListenAddr:       f.trapAddr,
			Backend:          trapreceiver.Backend(f.trapBackend),
			Community:        f.trapCommunity,
			OutputBufferSize: f.bufSize,
		},
		WatchDefinitions:   f.watch,
		ReloadDebounce:     f.reloadDebounce,
		ArchivePath:        f.archivePath,
		MetricsAddr:        f.metricsAddr,
		PrettyPrint:        f.pretty,
		EventWriter:        eventW,
		UnregisteredWriter: unregW,
	}, logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("trapmap: running, press Ctrl-C to stop")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			if err := application.Reload(); err != nil {
				logger.Error("trapmap: reload failed", "error", err.Error())
			}
		case <-ctx.Done():
			logger.Info("trapmap: received shutdown signal")
			application.Stop()
			return nil
		}
	}
}

// openOutput returns stdout for an empty path, else a rotating file. Closing
// a RotatingFile twice is harmless, so the split transport may close it
// first.
func openOutput(path string, f serveFlags, logger *slog.Logger) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	rf, err := filetransport.NewRotatingFile(filetransport.RotateConfig{
		FilePath:   path,
		MaxBytes:   f.fileMaxBytes,
		MaxBackups: f.fileMaxBackups,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return rf, func() { _ = rf.Close() }, nil
}
