// Package recordertest checks RunRecorder implementations against the
// behavior every backend must share.
package recordertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/deepnoodle-ai/scriptbox"
	"github.com/stretchr/testify/require"
)

// Run exercises recorder, which must start empty.
func Run(t *testing.T, recorder scriptbox.RunRecorder) {
	t.Helper()
	ctx := context.Background()

	_, err := recorder.GetRun(ctx, "run_missing")
	require.ErrorIs(t, err, scriptbox.ErrRunNotFound)

	runs, err := recorder.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, runs)

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := &scriptbox.RunRecord{
		ID:           "run_1",
		Status:       scriptbox.RunStatusCompleted,
		Offset:       -1,
		SourceDigest: "digest-1",
		Bindings: map[string]any{
			"x":     -101.0,
			"s":     "héllo",
			"items": []any{"a", 1.0, []any{}},
		},
		Stats:     scriptbox.Stats{Statements: 4, Calls: 1, MaxDepth: 1},
		StartTime: start,
		Duration:  0.25,
	}
	failed := &scriptbox.RunRecord{
		ID:           "run_2",
		Status:       scriptbox.RunStatusFailed,
		ErrorType:    scriptbox.ErrorTypeStackDepth,
		Error:        "call to \"f\" exceeds maximum call depth of 100",
		Offset:       12,
		SourceDigest: "digest-2",
		Bindings:     map[string]any{},
		Stats:        scriptbox.Stats{Statements: 100, Calls: 100, MaxDepth: 100},
		StartTime:    start.Add(time.Second),
		Duration:     1.5,
	}
	require.NoError(t, recorder.RecordRun(ctx, completed))
	require.NoError(t, recorder.RecordRun(ctx, failed))

	got, err := recorder.GetRun(ctx, "run_1")
	require.NoError(t, err)
	require.Equal(t, completed.Status, got.Status)
	require.Equal(t, completed.Bindings, got.Bindings)
	require.Equal(t, completed.Stats, got.Stats)
	require.Equal(t, -1, got.Offset)
	require.True(t, completed.StartTime.Equal(got.StartTime))
	require.InDelta(t, 0.25, got.Duration, 1e-9)

	got, err = recorder.GetRun(ctx, "run_2")
	require.NoError(t, err)
	require.Equal(t, scriptbox.RunStatusFailed, got.Status)
	require.Equal(t, scriptbox.ErrorTypeStackDepth, got.ErrorType)
	require.Equal(t, failed.Error, got.Error)
	require.Equal(t, 12, got.Offset)

	runs, err = recorder.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run_2", runs[0].ID)
	require.Equal(t, "run_1", runs[1].ID)

	for i := range 3 {
		require.NoError(t, recorder.RecordRun(ctx, &scriptbox.RunRecord{
			ID:        fmt.Sprintf("run_%d", i+3),
			Status:    scriptbox.RunStatusCompleted,
			Offset:    -1,
			Bindings:  map[string]any{},
			StartTime: start.Add(time.Duration(i+2) * time.Second),
		}))
	}
	runs, err = recorder.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run_5", runs[0].ID)
	require.Equal(t, "run_4", runs[1].ID)

	pruned, err := recorder.PruneRuns(ctx, start.Add(3*time.Second))
	require.NoError(t, err)
	require.Equal(t, 3, pruned)

	runs, err = recorder.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run_5", runs[0].ID)
	require.Equal(t, "run_4", runs[1].ID)

	_, err = recorder.GetRun(ctx, "run_1")
	require.ErrorIs(t, err, scriptbox.ErrRunNotFound)

	pruned, err = recorder.PruneRuns(ctx, start)
	require.NoError(t, err)
	require.Zero(t, pruned)
}
