package scriptbox

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	LoggerContextKey ContextKey = "logger"
	RunIDContextKey  ContextKey = "run_id"
)

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDContextKey, id)
}

func GetLoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(LoggerContextKey).(*slog.Logger)
	return logger, ok
}

func GetRunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RunIDContextKey).(string)
	return id, ok
}
