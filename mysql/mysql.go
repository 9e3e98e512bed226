// Package mysql stores scriptbox run records in MySQL.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deepnoodle-ai/scriptbox/internal/sqlstore"
	driver "github.com/go-sql-driver/mysql"
)

// Recorder is a scriptbox.RunRecorder backed by MySQL.
type Recorder struct {
	*sqlstore.Store
}

// NewRecorder connects to the database at dsn, given in the
// go-sql-driver/mysql format, and creates the runs table if needed.
func NewRecorder(ctx context.Context, dsn string) (*Recorder, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	connector, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening mysql database: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mysql database: %w", err)
	}
	store, err := sqlstore.New(ctx, db, sqlstore.MySQL)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{Store: store}, nil
}
