// Package reload keeps a typemap.Map in step with the YAML trap definitions
// on disk. The definitions directory is watched with fsnotify; bursts of
// events are debounced into one reload.
//
// A reload is all-or-nothing at the load stage: if any definition file has
// errors the live map is left untouched and the errors are reported.
// Types registered directly in Go are never removed by a reload; only types
// a previous reload registered are candidates for removal.
package reload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vpbank/snmp_trapmap/pkg/trapmap/config"
	"github.com/vpbank/snmp_trapmap/typemap"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Config controls a Reloader.
type Config struct {
	// Dir is the trap definitions directory.
	Dir string

	// Debounce is the quiet period after the last file event before a
	// reload runs.
	Debounce time.Duration

	// OnReload is called after every reload attempt. Optional.
	OnReload func(Result)
}

func (c Config) withDefaults() Config {
	out := c
	if out.Debounce <= 0 {
		out.Debounce = DefaultDebounce
	}
	return out
}

// Result describes one reload.
type Result struct {
	Registered []typemap.TypeID
	Removed    []typemap.TypeID
	Err        error
}

// Reloader owns the file-defined subset of a typemap.Map.
type Reloader struct {
	cfg    Config
	m      *typemap.Map
	logger *slog.Logger

	mu    sync.Mutex
	owned map[typemap.TypeID]struct{}
}

// New returns a Reloader for m. Nothing is loaded until Reload or Run.
func New(cfg Config, m *typemap.Map, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Reloader{
		cfg:    cfg.withDefaults(),
		m:      m,
		logger: logger,
		owned:  make(map[typemap.TypeID]struct{}),
	}
}

// Owned returns the type IDs the last successful reload registered.
func (r *Reloader) Owned() []typemap.TypeID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedIDs(r.owned)
}

// Reload loads the definitions directory and syncs the map with it. Types
// that disappeared from disk are unregistered before the new set is
// registered, so a trap OID may move between types in one edit. Register
// failures (a trap OID claimed by a Go-registered type) are collected; the
// remaining types are still applied.
func (r *Reloader) Reload() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.reload()
	if res.Err != nil {
		r.logger.Error("reload: trap definitions not applied", "dir", r.cfg.Dir, "error", res.Err.Error())
	} else {
		r.logger.Info("reload: trap definitions applied",
			"dir", r.cfg.Dir, "registered", len(res.Registered), "removed", len(res.Removed))
	}
	if r.cfg.OnReload != nil {
		r.cfg.OnReload(res)
	}
	return res
}

func (r *Reloader) reload() Result {
	loaded, err := config.Load(config.Paths{Traps: r.cfg.Dir}, r.logger)
	if err != nil {
		return Result{Err: err}
	}
	descs, err := loaded.Descriptors()
	if err != nil {
		return Result{Err: err}
	}

	next := make(map[typemap.TypeID]struct{}, len(descs))
	for _, d := range descs {
		next[d.ID] = struct{}{}
	}

	var res Result
	for _, id := range sortedIDs(r.owned) {
		if _, keep := next[id]; keep {
			continue
		}
		if r.m.Unregister(id) {
			res.Removed = append(res.Removed, id)
		}
		delete(r.owned, id)
	}

	var errs []error
	for _, d := range descs {
		if err := r.m.Register(d); err != nil {
			errs = append(errs, err)
			continue
		}
		r.owned[d.ID] = struct{}{}
		res.Registered = append(res.Registered, d.ID)
	}
	res.Err = errors.Join(errs...)
	return res
}

// Run performs an initial reload and then watches the definitions
// directory until ctx is cancelled. It returns ctx.Err() on cancellation;
// other errors come from setting up the watcher.
func (r *Reloader) Run(ctx context.Context) error {
	r.Reload()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reload: new watcher: %w", err)
	}
	defer w.Close()

	if err := r.watchTree(w, r.cfg.Dir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		r.logger.Warn("reload: definitions directory does not exist, not watching", "dir", r.cfg.Dir)
		<-ctx.Done()
		return ctx.Err()
	}
	r.logger.Info("reload: watching trap definitions", "dir", r.cfg.Dir, "debounce", r.cfg.Debounce)

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			r.logger.Debug("reload: file event", "file", ev.Name, "op", ev.Op.String())
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := r.watchTree(w, ev.Name); err != nil {
						r.logger.Warn("reload: watch new directory", "dir", ev.Name, "error", err.Error())
					}
				}
			}
			pending = true
			debounce.Reset(r.cfg.Debounce)

		case <-debounce.C:
			if pending {
				pending = false
				r.Reload()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("reload: watcher error", "error", err.Error())
		}
	}
}

// watchTree adds root and every directory below it. fsnotify watches are
// not recursive.
func (r *Reloader) watchTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("reload: watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant filters out chmod-only events and editor swap files.
func relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	return true
}

func sortedIDs(set map[typemap.TypeID]struct{}) []typemap.TypeID {
	ids := make([]typemap.TypeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
