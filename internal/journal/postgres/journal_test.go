package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	execs   []string
	pingErr error
}

type stubDriver struct {
	conn *stubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }

func (c *stubConn) Ping(context.Context) error { return c.pingErr }

func (c *stubConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, query)
	return driver.RowsAffected(0), nil
}

func newStubDB(t *testing.T, conn *stubConn) func(string, string) (*sql.DB, error) {
	t.Helper()
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	return func(_, dsn string) (*sql.DB, error) {
		return sql.Open(name, dsn)
	}
}

func TestNewJournalEnsuresEventsTable(t *testing.T) {
	conn := &stubConn{}
	restore := OverrideSQLOpen(newStubDB(t, conn))
	defer restore()

	j, err := NewJournal("postgres://stub/agentcore")
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	require.Len(t, conn.execs, 1)
	require.Contains(t, conn.execs[0], "CREATE TABLE IF NOT EXISTS events")
}

func TestNewJournalPingFailure(t *testing.T) {
	conn := &stubConn{pingErr: errors.New("refused")}
	restore := OverrideSQLOpen(newStubDB(t, conn))
	defer restore()

	_, err := NewJournal("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ping postgres")
}

func TestNewJournalOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("bad dsn")
	})
	defer restore()

	_, err := NewJournal("postgres://nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "open postgres")
}

func TestDefaultDSNApplied(t *testing.T) {
	var seen string
	conn := &stubConn{}
	open := newStubDB(t, conn)
	restore := OverrideSQLOpen(func(drv, dsn string) (*sql.DB, error) {
		seen = dsn
		return open(drv, dsn)
	})
	defer restore()

	j, err := NewJournal("")
	require.NoError(t, err)
	defer func() { _ = j.Close() }()
	require.True(t, strings.HasPrefix(seen, "postgres://localhost/agentcore"))
}
