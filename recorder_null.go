package scriptbox

import (
	"context"
	"time"
)

// NullRunRecorder is a no-op implementation of RunRecorder.
type NullRunRecorder struct{}

func NewNullRunRecorder() *NullRunRecorder {
	return &NullRunRecorder{}
}

func (r *NullRunRecorder) RecordRun(ctx context.Context, record *RunRecord) error {
	return nil
}

func (r *NullRunRecorder) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	return nil, ErrRunNotFound
}

func (r *NullRunRecorder) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	return nil, nil
}

func (r *NullRunRecorder) PruneRuns(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}
