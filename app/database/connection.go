package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	_ "modernc.org/sqlite"
)

// DB is the product catalog connection.
type DB struct {
	*sql.DB
}

// NewConnection opens the SQLite catalog at path. A single connection is
// used so that writes from concurrent runs are serialized by the pool.
func NewConnection(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(0)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	err = backoff.RetryNotify(sqlDB.Ping, bo, func(err error, next time.Duration) {
		slog.Warn("Database not ready, retrying", "path", path, "retry_in", next.String(), "error", err)
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}
