// Package archive persists envelope Records in SQLite so received traps can
// be replayed through the type map later, for example after a definition
// change.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/vpbank/snmp_trapmap/envelope"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	received_ft   INTEGER NOT NULL,
	occurrence_ft INTEGER NOT NULL,
	type_id       TEXT    NOT NULL DEFAULT '',
	source        TEXT    NOT NULL DEFAULT '',
	protocol      TEXT    NOT NULL DEFAULT '',
	payload       BLOB
);
CREATE INDEX IF NOT EXISTS idx_records_received_ft ON records(received_ft);
CREATE INDEX IF NOT EXISTS idx_records_type_id ON records(type_id);
`

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("archive: store is closed")

// Store is an append-only table of envelope Records. It is safe for
// concurrent use; SQLite serialises writers so the pool holds a single
// connection.
type Store struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
	logger *slog.Logger
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("archive: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: create schema: %w", err)
	}

	logger.Info("archive: opened", "path", path)
	return &Store{db: db, path: path, logger: logger}, nil
}

// Append stores r.
func (s *Store) Append(ctx context.Context, r envelope.Record) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (received_ft, occurrence_ft, type_id, source, protocol, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ReceivedFileTimeUTC, r.OccurrenceFileTimeUTC, r.TypeID, r.Source, r.Protocol, r.Payload,
	)
	if err != nil {
		return fmt.Errorf("archive: append: %w", err)
	}
	return nil
}

// AppendEnvelope flattens env and stores it.
func (s *Store) AppendEnvelope(ctx context.Context, env *envelope.Envelope) error {
	r, err := envelope.FromEnvelope(env)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return s.Append(ctx, r)
}

// Since returns the records received at or after file time ft, oldest
// first. limit <= 0 returns all of them.
func (s *Store) Since(ctx context.Context, ft int64, limit int) ([]envelope.Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT received_ft, occurrence_ft, type_id, source, protocol, payload
		 FROM records WHERE received_ft >= ? ORDER BY received_ft, id LIMIT ?`,
		ft, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	defer rows.Close()

	var out []envelope.Record
	for rows.Next() {
		var r envelope.Record
		if err := rows.Scan(&r.ReceivedFileTimeUTC, &r.OccurrenceFileTimeUTC, &r.TypeID, &r.Source, &r.Protocol, &r.Payload); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows: %w", err)
	}
	return out, nil
}

// Replay decodes every record received at or after ft and calls fn with the
// rebuilt envelope. Records that fail to decode are logged and skipped.
// Replay stops at the first error fn returns.
func (s *Store) Replay(ctx context.Context, ft int64, fn func(*envelope.Envelope) error) (int, error) {
	recs, err := s.Since(ctx, ft, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		env, err := r.Envelope()
		if err != nil {
			s.logger.Warn("archive: skipping undecodable record",
				"source", r.Source, "received_ft", r.ReceivedFileTimeUTC, "error", err.Error())
			continue
		}
		if err := fn(env); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return n, nil
}

// Prune deletes records received before ft and returns how many went.
func (s *Store) Prune(ctx context.Context, ft int64) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE received_ft < ?`, ft)
	if err != nil {
		return 0, fmt.Errorf("archive: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("archive: pruned records", "count", n)
	}
	return n, nil
}

// Close closes the database. It is idempotent; later operations return
// ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
