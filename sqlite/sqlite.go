// Package sqlite stores scriptbox run records in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deepnoodle-ai/scriptbox/internal/sqlstore"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"
)

// Recorder is a scriptbox.RunRecorder backed by SQLite.
type Recorder struct {
	*sqlstore.Store
}

// NewRecorder opens the database at dsn, which may be a file path or
// ":memory:", and creates the runs table if needed.
func NewRecorder(ctx context.Context, dsn string) (*Recorder, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring sqlite database: %w", err)
	}
	store, err := sqlstore.New(ctx, db, sqlstore.SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{Store: store}, nil
}
