package scriptbox

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned by RunRecorder.GetRun for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the persisted outcome of one Engine run
type RunRecord struct {
	ID           string         `json:"id"`
	Status       RunStatus      `json:"status"`
	ErrorType    string         `json:"error_type,omitempty"`
	Error        string         `json:"error,omitempty"`
	Offset       int            `json:"offset"`
	SourceDigest string         `json:"source_digest"`
	Bindings     map[string]any `json:"bindings"`
	Stats        Stats          `json:"stats"`
	StartTime    time.Time      `json:"start_time"`
	Duration     float64        `json:"duration"`
}

// RunRecorder stores run records
type RunRecorder interface {
	// RecordRun stores a completed or failed run
	RecordRun(ctx context.Context, record *RunRecord) error

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns up to limit runs, most recent first
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// PruneRuns deletes runs that started before the given time and
	// returns how many were removed
	PruneRuns(ctx context.Context, before time.Time) (int, error)
}
