// Package postgres stores scriptbox run records in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deepnoodle-ai/scriptbox/internal/sqlstore"

	_ "github.com/lib/pq"
)

// Recorder is a scriptbox.RunRecorder backed by PostgreSQL.
type Recorder struct {
	*sqlstore.Store
}

// NewRecorder connects to the database at dsn and creates the runs table
// if needed.
func NewRecorder(ctx context.Context, dsn string) (*Recorder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres database: %w", err)
	}
	store, err := sqlstore.New(ctx, db, sqlstore.Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{Store: store}, nil
}
