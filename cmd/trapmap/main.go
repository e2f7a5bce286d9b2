// Command trapmap receives SNMP traps, maps each one onto a registered trap
// type and writes the result as JSON lines.
//
// Usage:
//
//	trapmap serve [flags]          run the receiver pipeline
//	trapmap decode <hex|->         print a BER datagram as JSON
//	trapmap send [flags]           send a v2c trap
//	trapmap replay [flags]         re-map archived traps
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "trapmap: %v\n", err)
		os.Exit(1)
	}
}

type logFlags struct {
	level  string
	format string
}

func newRootCmd() *cobra.Command {
	var lf logFlags
	root := &cobra.Command{
		Use:           "trapmap",
		Version:       version,
		Short:         "SNMP trap receiver and typed trap mapper",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&lf.level, "log.level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&lf.format, "log.fmt", "json", "Log format: json, text")

	root.AddCommand(
		newServeCmd(&lf),
		newDecodeCmd(&lf),
		newSendCmd(&lf),
		newReplayCmd(&lf),
	)
	return root
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (lf *logFlags) logger() (*slog.Logger, error) {
	return buildLogger(lf.level, lf.format)
}

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
