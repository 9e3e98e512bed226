// Package sqlstore implements scriptbox.RunRecorder on top of database/sql.
// The sqlite, postgres and mysql packages supply the driver and dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deepnoodle-ai/scriptbox"
)

// Dialect holds the SQL that differs between databases.
type Dialect struct {
	Name   string
	Schema string

	// Placeholder returns the bind parameter for the n-th argument, from 1
	Placeholder func(n int) string
}

func questionMark(int) string { return "?" }

var SQLite = Dialect{
	Name: "sqlite",
	Schema: `CREATE TABLE IF NOT EXISTS script_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		error_type TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		error_offset INTEGER NOT NULL,
		source_digest TEXT NOT NULL,
		bindings TEXT NOT NULL,
		stats TEXT NOT NULL,
		start_time_ns INTEGER NOT NULL,
		duration REAL NOT NULL
	)`,
	Placeholder: questionMark,
}

var Postgres = Dialect{
	Name: "postgres",
	Schema: `CREATE TABLE IF NOT EXISTS script_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		error_type TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		error_offset INTEGER NOT NULL,
		source_digest TEXT NOT NULL,
		bindings TEXT NOT NULL,
		stats TEXT NOT NULL,
		start_time_ns BIGINT NOT NULL,
		duration DOUBLE PRECISION NOT NULL
	)`,
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

var MySQL = Dialect{
	Name: "mysql",
	Schema: `CREATE TABLE IF NOT EXISTS script_runs (
		id VARCHAR(64) PRIMARY KEY,
		status VARCHAR(16) NOT NULL,
		error_type VARCHAR(64) NOT NULL DEFAULT '',
		error_message TEXT NOT NULL,
		error_offset INT NOT NULL,
		source_digest CHAR(64) NOT NULL,
		bindings LONGTEXT NOT NULL,
		stats TEXT NOT NULL,
		start_time_ns BIGINT NOT NULL,
		duration DOUBLE NOT NULL
	)`,
	Placeholder: questionMark,
}

const columns = "id, status, error_type, error_message, error_offset, source_digest, bindings, stats, start_time_ns, duration"

// Store is a RunRecorder backed by a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New creates the schema if needed and returns a Store. The Store takes
// ownership of db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if _, err := db.ExecContext(ctx, dialect.Schema); err != nil {
		return nil, fmt.Errorf("creating %s schema: %w", dialect.Name, err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordRun(ctx context.Context, record *scriptbox.RunRecord) error {
	bindings, err := json.Marshal(record.Bindings)
	if err != nil {
		return fmt.Errorf("encoding bindings: %w", err)
	}
	stats, err := json.Marshal(record.Stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	placeholders := make([]string, 10)
	for i := range placeholders {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	query := "INSERT INTO script_runs (" + columns + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		string(record.Status),
		record.ErrorType,
		record.Error,
		record.Offset,
		record.SourceDigest,
		string(bindings),
		string(stats),
		record.StartTime.UnixNano(),
		record.Duration,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", record.ID, err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*scriptbox.RunRecord, error) {
	query := "SELECT " + columns + " FROM script_runs WHERE id = " + s.dialect.Placeholder(1)
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scriptbox.ErrRunNotFound
	}
	return record, err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]*scriptbox.RunRecord, error) {
	query := "SELECT " + columns + " FROM script_runs ORDER BY start_time_ns DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT " + s.dialect.Placeholder(1)
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var records []*scriptbox.RunRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int, error) {
	query := "DELETE FROM script_runs WHERE start_time_ns < " + s.dialect.Placeholder(1)
	res, err := s.db.ExecContext(ctx, query, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*scriptbox.RunRecord, error) {
	var (
		record      scriptbox.RunRecord
		status      string
		bindings    string
		stats       string
		startTimeNs int64
	)
	err := row.Scan(
		&record.ID,
		&status,
		&record.ErrorType,
		&record.Error,
		&record.Offset,
		&record.SourceDigest,
		&bindings,
		&stats,
		&startTimeNs,
		&record.Duration,
	)
	if err != nil {
		return nil, err
	}
	record.Status = scriptbox.RunStatus(status)
	record.StartTime = time.Unix(0, startTimeNs).UTC()
	if err := json.Unmarshal([]byte(bindings), &record.Bindings); err != nil {
		return nil, fmt.Errorf("decoding bindings of run %s: %w", record.ID, err)
	}
	if err := json.Unmarshal([]byte(stats), &record.Stats); err != nil {
		return nil, fmt.Errorf("decoding stats of run %s: %w", record.ID, err)
	}
	return &record, nil
}
