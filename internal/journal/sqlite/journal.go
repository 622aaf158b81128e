// Package sqlite persists the event journal to a single SQLite table. Every
// append runs in one database transaction, so a batch lands whole or not at
// all and per-instance sequence numbers never skip.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"agentcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.EventJournal = (*Journal)(nil)

// Journal is a SQLite-backed event journal.
type Journal struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewJournal opens or creates the journal database at path.
func NewJournal(path string) (*Journal, error) {
	if path == "" {
		path = "agentcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
		instance TEXT NOT NULL,
		seq INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		payload BLOB,
		PRIMARY KEY (instance, seq)
	)`); err != nil {
		return nil, fmt.Errorf("create events table: %w", err)
	}
	return &Journal{db: db, path: path}, nil
}

// Append writes events in order, assigning each the next sequence number of
// its instance. The whole batch commits or none of it does.
func (j *Journal) Append(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	next := map[domain.Address]uint64{}
	for i := range events {
		instance := events[i].Instance
		seq, known := next[instance]
		if !known {
			row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE instance = ?`, string(instance))
			if err := row.Scan(&seq); err != nil {
				return fmt.Errorf("read sequence for %s: %w", instance, err)
			}
		}
		seq++
		next[instance] = seq
		events[i].Seq = seq
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events(instance, seq, timestamp, type, payload) VALUES(?, ?, ?, ?, ?)`,
			string(instance), seq, events[i].Timestamp.UTC().Format(time.RFC3339Nano),
			string(events[i].Type), []byte(events[i].Payload),
		); err != nil {
			return fmt.Errorf("insert event %s/%d: %w", instance, seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// List returns the full journal of one instance in sequence order.
func (j *Journal) List(ctx context.Context, instance domain.Address) ([]domain.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, timestamp, type, payload FROM events WHERE instance = ? ORDER BY seq`, string(instance))
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Event
	for rows.Next() {
		var (
			ev      domain.Event
			stamp   string
			typ     string
			payload []byte
		)
		if err := rows.Scan(&ev.Seq, &stamp, &typ, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return nil, fmt.Errorf("decode timestamp: %w", err)
		}
		ev.Instance = instance
		ev.Timestamp = ts
		ev.Type = domain.EventType(typ)
		ev.Payload = payload
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (j *Journal) DB() *sql.DB { return j.db }

// Path returns the configured database path.
func (j *Journal) Path() string { return j.path }
