// Package postgres persists the event journal to Postgres with the same
// append semantics as the SQLite backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"agentcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion.
var _ domain.EventJournal = (*Journal)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/agentcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Journal is a Postgres-backed event journal.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// NewJournal opens a journal using the provided DSN (falls back to
// defaultDSN) and ensures the events table exists.
func NewJournal(dsn string) (*Journal, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS events (
		instance TEXT NOT NULL,
		seq BIGINT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		type TEXT NOT NULL,
		payload JSONB,
		PRIMARY KEY (instance, seq)
	)`); err != nil {
		return nil, fmt.Errorf("create events table: %w", err)
	}
	return &Journal{db: db}, nil
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
			row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE instance = $1`, string(instance))
			if err := row.Scan(&seq); err != nil {
				return fmt.Errorf("read sequence for %s: %w", instance, err)
			}
		}
		seq++
		next[instance] = seq
		events[i].Seq = seq
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events(instance, seq, timestamp, type, payload) VALUES($1, $2, $3, $4, $5)`,
			string(instance), seq, events[i].Timestamp.UTC(),
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
		`SELECT seq, timestamp, type, payload FROM events WHERE instance = $1 ORDER BY seq`, string(instance))
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Event
	for rows.Next() {
		var (
			ev      domain.Event
			stamp   time.Time
			typ     string
			payload []byte
		)
		if err := rows.Scan(&ev.Seq, &stamp, &typ, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Instance = instance
		ev.Timestamp = stamp
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

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
