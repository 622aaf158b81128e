// Package journal selects an event journal backend.
package journal

import (
	"fmt"

	"agentcore/internal/journal/memory"
	"agentcore/internal/journal/postgres"
	"agentcore/internal/journal/sqlite"
	"agentcore/pkg/domain"
)

// Driver names a journal backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects and parameterizes a backend. The zero value opens the
// in-memory journal.
type Config struct {
	Driver      Driver
	SQLitePath  string
	PostgresDSN string
}

// Open constructs the configured journal backend.
func Open(cfg Config) (domain.EventJournal, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}
	switch driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite:
		return sqlite.NewJournal(cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewJournal(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown journal driver %s", driver)
	}
}
