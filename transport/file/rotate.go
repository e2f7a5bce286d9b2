// Package file: rotate.go provides size-based rotation for event output
// files.
//
// Once MaxBytes would be exceeded the active file is renamed with a numeric
// suffix (events.json → events.json.1) and a fresh file is opened. Up to
// MaxBackups rotated files are kept.
//
// RotatingFile satisfies io.Writer and io.Closer so it can be used directly
// as the Writer field of Config or SplitConfig.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// RotateConfig
// ─────────────────────────────────────────────────────────────────────────────

// RotateConfig controls rotation behaviour.
type RotateConfig struct {
	// FilePath is the active file name (required).
	FilePath string

	// MaxBytes triggers rotation before a write would take the active file
	// past this size. Zero disables rotation.
	MaxBytes int64

	// MaxBackups is the number of rotated files to keep. Zero keeps all.
	MaxBackups int
}

// ─────────────────────────────────────────────────────────────────────────────
// RotatingFile
// ─────────────────────────────────────────────────────────────────────────────

// RotatingFile is an io.WriteCloser that performs size-based rotation.
// It is safe for concurrent use.
type RotatingFile struct {
	mu        sync.Mutex
	cfg       RotateConfig
	file      *os.File
	size      int64
	rotations int
	closed    bool
	logger    *slog.Logger
}

// NewRotatingFile opens (or creates) cfg.FilePath, creating parent
// directories as needed. The caller must call Close when finished.
func NewRotatingFile(cfg RotateConfig, logger *slog.Logger) (*RotatingFile, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("transport/file: rotate: FilePath is required")
	}
	if cfg.MaxBackups < 0 {
		return nil, fmt.Errorf("transport/file: rotate: MaxBackups %d is negative", cfg.MaxBackups)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	dir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transport/file: rotate: mkdir %s: %w", dir, err)
	}

	rf := &RotatingFile{cfg: cfg, logger: logger}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Write implements io.Writer. A failed rotation is logged and the write goes
// to the current file so no event is lost.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.closed {
		return 0, fs.ErrClosed
	}
	if rf.cfg.MaxBytes > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.cfg.MaxBytes {
		if err := rf.rotate(); err != nil {
			rf.logger.Error("transport/file: rotate failed", "file", rf.cfg.FilePath, "error", err.Error())
		}
	}
	if rf.file == nil {
		if err := rf.open(); err != nil {
			return 0, err
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Rotations returns how many times the file has been rotated.
func (rf *RotatingFile) Rotations() int {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.rotations
}

// Close closes the active file. Further writes fail with fs.ErrClosed.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.closed {
		return nil
	}
	rf.closed = true
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("transport/file: rotate: open %s: %w", rf.cfg.FilePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("transport/file: rotate: stat %s: %w", rf.cfg.FilePath, err)
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

func (rf *RotatingFile) backup(n int) string {
	return fmt.Sprintf("%s.%d", rf.cfg.FilePath, n)
}

// rotate shifts backups up by one and reopens the active file:
//
//	events.json   → events.json.1
//	events.json.1 → events.json.2
//	events.json.N → removed when N == MaxBackups
func (rf *RotatingFile) rotate() error {
	if rf.file != nil {
		if err := rf.file.Close(); err != nil {
			rf.logger.Warn("transport/file: rotate: close error", "error", err.Error())
		}
		rf.file = nil
	}

	top := rf.cfg.MaxBackups
	if top == 0 {
		top = rf.highestBackup()
	} else {
		_ = os.Remove(rf.backup(top))
		top--
	}
	for i := top; i >= 1; i-- {
		_ = os.Rename(rf.backup(i), rf.backup(i+1))
	}
	if err := os.Rename(rf.cfg.FilePath, rf.backup(1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		rf.logger.Warn("transport/file: rotate: rename error", "error", err.Error())
	}
	if rf.cfg.MaxBackups > 0 {
		rf.prune(rf.cfg.MaxBackups + 1)
	}

	rf.rotations++
	rf.logger.Info("transport/file: rotated", "file", rf.cfg.FilePath, "rotations", rf.rotations)
	return rf.open()
}

func (rf *RotatingFile) highestBackup() int {
	n := 0
	for {
		if _, err := os.Stat(rf.backup(n + 1)); err != nil {
			return n
		}
		n++
	}
}

// prune removes backups numbered from and above, stopping at the first gap.
func (rf *RotatingFile) prune(from int) {
	for i := from; ; i++ {
		if err := os.Remove(rf.backup(i)); err != nil {
			return
		}
		rf.logger.Debug("transport/file: pruned old backup", "file", rf.backup(i))
	}
}
