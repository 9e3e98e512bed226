package scriptbox_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/deepnoodle-ai/scriptbox"
	"github.com/stretchr/testify/require"
)

// eventLog is a test implementation of RunCallbacks
type eventLog struct {
	name   string
	events *[]string
}

func (l *eventLog) BeforeRun(ctx context.Context, event *scriptbox.RunEvent) {
	runID, _ := scriptbox.GetRunIDFromContext(ctx)
	*l.events = append(*l.events, fmt.Sprintf("%s before %t", l.name, runID == event.RunID))
}

func (l *eventLog) AfterRun(ctx context.Context, event *scriptbox.RunEvent) {
	*l.events = append(*l.events, fmt.Sprintf("%s after %s", l.name, event.Status))
}

func TestCallbackChain(t *testing.T) {
	var events []string
	chain := scriptbox.NewCallbackChain(&eventLog{name: "first", events: &events})
	chain.Add(&eventLog{name: "second", events: &events})

	engine, err := scriptbox.NewEngine(scriptbox.EngineOptions{Callbacks: chain})
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), `x = 1;`, nil)
	require.NoError(t, err)
	_, err = engine.Run(context.Background(), `x = y;`, nil)
	require.Error(t, err)

	require.Equal(t, []string{
		"first before true",
		"second before true",
		"first after completed",
		"second after completed",
		"first before true",
		"second before true",
		"first after failed",
		"second after failed",
	}, events)
}

func TestBaseRunCallbacks(t *testing.T) {
	callbacks := scriptbox.NewBaseRunCallbacks()
	event := &scriptbox.RunEvent{RunID: "run_1"}
	require.NotPanics(t, func() {
		callbacks.BeforeRun(context.Background(), event)
		callbacks.AfterRun(context.Background(), event)
	})
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	_, ok := scriptbox.GetLoggerFromContext(ctx)
	require.False(t, ok)

	logger := scriptbox.NewDiscardLogger()
	ctx = scriptbox.WithLogger(ctx, logger)
	got, ok := scriptbox.GetLoggerFromContext(ctx)
	require.True(t, ok)
	require.Same(t, logger, got)

	ctx = scriptbox.WithRunID(ctx, "run_abc")
	id, ok := scriptbox.GetRunIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "run_abc", id)
}
