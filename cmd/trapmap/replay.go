package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpbank/snmp_trapmap/archive"
	"github.com/vpbank/snmp_trapmap/envelope"
	jsonformat "github.com/vpbank/snmp_trapmap/format/json"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/app"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/config"
	filetransport "github.com/vpbank/snmp_trapmap/transport/file"
	"github.com/vpbank/snmp_trapmap/typemap"
)

type replayFlags struct {
	archivePath string
	since       time.Duration
	cfgTraps    string
	pretty      bool
}

func newReplayCmd(lf *logFlags) *cobra.Command {
	var f replayFlags
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-map archived traps with the current trap definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := lf.logger()
			if err != nil {
				return err
			}
			tr := filetransport.New(filetransport.Config{Writer: cmd.OutOrStdout()}, logger)
			n, err := runReplay(cmd.Context(), f, tr, logger)
			if err != nil {
				return err
			}
			logger.Info("trapmap: replay complete", "events", n)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.archivePath, "archive.path", "", "SQLite archive to read (required)")
	fl.DurationVar(&f.since, "since", 0, "Only replay traps received within this window (default: all)")
	fl.StringVar(&f.cfgTraps, "config.traps", "", "Override "+config.EnvTrapDefinitions)
	fl.BoolVar(&f.pretty, "format.pretty", false, "Pretty-print JSON output")
	_ = cmd.MarkFlagRequired("archive.path")
	return cmd
}

func runReplay(ctx context.Context, f replayFlags, tr filetransport.Transport, logger *slog.Logger) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	paths := config.PathsFromEnv()
	if f.cfgTraps != "" {
		paths.Traps = f.cfgTraps
	}
	m, err := loadTypeMap(paths, logger)
	if err != nil {
		return 0, err
	}

	store, err := archive.Open(f.archivePath, logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	var from int64
	if f.since > 0 {
		from = envelope.ToFileTime(time.Now().Add(-f.since))
	}

	mp := &app.Mapper{Types: m, MapperID: "replay", Logger: logger}
	formatter := jsonformat.New(jsonformat.Config{PrettyPrint: f.pretty}, logger)
	return store.Replay(ctx, from, func(env *envelope.Envelope) error {
		ev, err := mp.Map(ctx, env)
		if err != nil {
			logger.Warn("trapmap: replay map error", "source", env.Source, "error", err.Error())
			return nil
		}
		data, err := formatter.Format(ev)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		return tr.Send(data)
	})
}

// loadTypeMap registers every definition under paths in a fresh map.
func loadTypeMap(paths config.Paths, logger *slog.Logger) (*typemap.Map, error) {
	loaded, err := config.Load(paths, logger)
	if err != nil {
		return nil, err
	}
	descs, err := loaded.Descriptors()
	if err != nil {
		return nil, err
	}
	m := typemap.New(typemap.WithLogger(logger))
	for _, d := range descs {
		if err := m.Register(d); err != nil {
			return nil, err
		}
	}
	return m, nil
}
