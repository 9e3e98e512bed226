package scriptbox

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deepnoodle-ai/scriptbox/parser"
	"github.com/deepnoodle-ai/scriptbox/retry"
	"github.com/deepnoodle-ai/scriptbox/value"
	"github.com/edwingeng/deque"
	"github.com/zeebo/blake3"
	"go.jetify.com/typeid"
)

// NewRunID returns a new time-sortable ID for a run
func NewRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RunStatus represents the outcome of a run
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// EngineOptions configures a new Engine
type EngineOptions struct {
	Limits    Limits
	Logger    *slog.Logger
	Recorder  RunRecorder
	Callbacks RunCallbacks
	Globals   map[string]any
	CacheSize int

	// RecordRetries is how many times a recoverable recorder failure is
	// retried. Zero uses the default of 2 and a negative value disables
	// retries.
	RecordRetries int
}

// RunResult is the outcome of Engine.Run
type RunResult struct {
	ID       string         `json:"id"`
	Status   RunStatus      `json:"status"`
	Bindings map[string]any `json:"bindings"`
	Stats    Stats          `json:"stats"`
	Duration time.Duration  `json:"duration"`
	Error    *ScriptError   `json:"error,omitempty"`
}

// Engine compiles and runs scripts for a host. Compiled programs are cached
// by source digest. An Engine is safe for concurrent use; every run gets its
// own Context.
type Engine struct {
	limits    Limits
	logger    *slog.Logger
	recorder  RunRecorder
	callbacks RunCallbacks
	globals   map[string]any
	cacheSize int
	retries   int

	mutex sync.Mutex
	cache map[[32]byte]*Program
	order deque.Deque
}

// NewEngine creates a new Engine. Globals must be convertible with
// value.FromGo.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = NewDiscardLogger()
	}
	if opts.Recorder == nil {
		opts.Recorder = NewNullRunRecorder()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseRunCallbacks{}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.RecordRetries == 0 {
		opts.RecordRetries = 2
	} else if opts.RecordRetries < 0 {
		opts.RecordRetries = 0
	}
	if _, err := convertGlobals(opts.Globals); err != nil {
		return nil, err
	}
	return &Engine{
		limits:    opts.Limits.WithDefaults(),
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		callbacks: opts.Callbacks,
		globals:   opts.Globals,
		cacheSize: opts.CacheSize,
		retries:   opts.RecordRetries,
		cache:     map[[32]byte]*Program{},
		order:     deque.NewDeque(),
	}, nil
}

// Limits returns the limits applied to every run
func (e *Engine) Limits() Limits {
	return e.limits
}

// Compile parses src, reusing an earlier result for identical source.
// Sources that fail to parse are not cached.
func (e *Engine) Compile(src string) (*Program, error) {
	key := blake3.Sum256([]byte(src))

	e.mutex.Lock()
	program, ok := e.cache[key]
	e.mutex.Unlock()
	if ok {
		return program, nil
	}

	program, err := Parse(src, parser.WithMaxNestingDepth(e.limits.MaxNestingDepth))
	if err != nil {
		return nil, err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if cached, ok := e.cache[key]; ok {
		return cached, nil
	}
	e.cache[key] = program
	e.order.PushBack(key)
	for e.order.Len() > e.cacheSize {
		oldest := e.order.PopFront().([32]byte)
		delete(e.cache, oldest)
	}
	return program, nil
}

// CachedPrograms returns the number of compiled programs held in the cache
func (e *Engine) CachedPrograms() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.cache)
}

// NewContext returns a Context configured with the engine limits and seeded
// with the engine globals followed by the given globals.
func (e *Engine) NewContext(globals map[string]any) (*Context, error) {
	base, err := convertGlobals(e.globals)
	if err != nil {
		return nil, err
	}
	extra, err := convertGlobals(globals)
	if err != nil {
		return nil, err
	}
	return NewContext(WithLimits(e.limits), WithBindings(base), WithBindings(extra)), nil
}

// Run compiles and executes src in a fresh Context. When the script fails
// to parse or execute, the returned result describes the failure, keeps the
// bindings made before it, and the same *ScriptError is returned as the
// error. A nil result means the run never started.
func (e *Engine) Run(ctx context.Context, src string, globals map[string]any) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := e.NewContext(globals)
	if err != nil {
		return nil, err
	}

	id := NewRunID()
	ctx = WithRunID(ctx, id)
	logger := e.logger
	if ctxLogger, ok := GetLoggerFromContext(ctx); ok {
		logger = ctxLogger
	}
	logger = logger.With("run_id", id)

	digest := blake3.Sum256([]byte(src))
	startTime := time.Now()
	e.callbacks.BeforeRun(ctx, &RunEvent{
		RunID:        id,
		SourceDigest: hex.EncodeToString(digest[:]),
		StartTime:    startTime,
	})

	runErr := e.execute(src, c)
	bindings, convErr := c.Bindings()
	if runErr == nil {
		runErr = convErr
	}
	duration := time.Since(startTime)

	result := &RunResult{
		ID:       id,
		Status:   RunStatusCompleted,
		Bindings: bindings,
		Stats:    c.Stats(),
		Duration: duration,
	}
	record := &RunRecord{
		ID:           id,
		Status:       RunStatusCompleted,
		Offset:       -1,
		SourceDigest: hex.EncodeToString(digest[:]),
		Bindings:     result.Bindings,
		Stats:        result.Stats,
		StartTime:    startTime,
		Duration:     duration.Seconds(),
	}
	if runErr != nil {
		scriptErr := ClassifyError(runErr)
		result.Status = RunStatusFailed
		result.Error = scriptErr
		record.Status = RunStatusFailed
		record.ErrorType = scriptErr.Type
		record.Error = scriptErr.Cause
		record.Offset = scriptErr.Offset
		logger.Warn("run failed",
			"error_type", scriptErr.Type,
			"error", scriptErr.Cause,
			"offset", scriptErr.Offset,
			"duration", duration)
	} else {
		logger.Info("run completed",
			"statements", result.Stats.Statements,
			"calls", result.Stats.Calls,
			"iterations", result.Stats.Iterations,
			"duration", duration)
	}

	err = retry.Do(ctx, func() error {
		return e.recorder.RecordRun(ctx, record)
	}, retry.WithMaxRetries(e.retries))
	if err != nil {
		logger.Error("failed to record run", "error", err)
	}
	e.callbacks.AfterRun(ctx, &RunEvent{
		RunID:        id,
		SourceDigest: record.SourceDigest,
		Status:       result.Status,
		StartTime:    startTime,
		EndTime:      startTime.Add(duration),
		Duration:     duration,
		Bindings:     result.Bindings,
		Stats:        result.Stats,
		Error:        runErr,
	})

	if result.Error != nil {
		return result, result.Error
	}
	return result, nil
}

func (e *Engine) execute(src string, c *Context) error {
	program, err := e.Compile(src)
	if err != nil {
		return err
	}
	return program.Execute(c)
}

func convertGlobals(globals map[string]any) (map[string]value.Value, error) {
	converted := make(map[string]value.Value, len(globals))
	for name, v := range globals {
		cv, err := value.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("global %q: %w", name, err)
		}
		converted[name] = cv
	}
	return converted, nil
}
