// Package server exposes a scriptbox Engine over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/deepnoodle-ai/scriptbox"
	"github.com/go-co-op/gocron/v2"
	"github.com/valyala/fasthttp"
)

const (
	DefaultMaxBodySize   = 1 << 20
	DefaultPruneInterval = time.Hour
)

// Options configures a Server
type Options struct {
	Engine      *scriptbox.Engine
	Recorder    scriptbox.RunRecorder
	Logger      *slog.Logger
	MaxBodySize int

	// Retention is how long recorded runs are kept. Zero keeps them forever.
	Retention time.Duration

	// PruneInterval is how often runs older than Retention are deleted
	PruneInterval time.Duration
}

// Server runs scripts submitted over HTTP.
//
//	POST /run        run a script given as JSON {"source", "globals"} or raw text
//	GET  /runs       list recorded runs, most recent first (?limit=n)
//	GET  /runs/<id>  fetch a recorded run
//	GET  /healthz    liveness check
type Server struct {
	engine    *scriptbox.Engine
	recorder  scriptbox.RunRecorder
	logger    *slog.Logger
	server    *fasthttp.Server
	retention time.Duration
	scheduler gocron.Scheduler
}

// RunRequest is the JSON body accepted by POST /run
type RunRequest struct {
	Source  string         `json:"source"`
	Globals map[string]any `json:"globals,omitempty"`
}

// RunResponse is returned by POST /run
type RunResponse struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Bindings map[string]any  `json:"bindings"`
	Stats    scriptbox.Stats `json:"stats"`
	Duration float64         `json:"duration"`
	Error    *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody describes a failure
type ErrorBody struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Offset  *int   `json:"offset,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Reached int    `json:"reached,omitempty"`
}

// New creates a new Server
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.Recorder == nil {
		opts.Recorder = scriptbox.NewNullRunRecorder()
	}
	if opts.Logger == nil {
		opts.Logger = scriptbox.NewDiscardLogger()
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = DefaultPruneInterval
	}
	s := &Server{
		engine:    opts.Engine,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		retention: opts.Retention,
	}
	if opts.Retention > 0 {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return nil, fmt.Errorf("creating scheduler: %w", err)
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(opts.PruneInterval),
			gocron.NewTask(func() {
				if _, err := s.PruneRuns(context.Background()); err != nil {
					s.logger.Error("failed to prune runs", "error", err)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			scheduler.Shutdown()
			return nil, fmt.Errorf("scheduling run pruning: %w", err)
		}
		s.scheduler = scheduler
	}
	s.server = &fasthttp.Server{
		Handler:            s.Handler,
		Name:               "scriptbox",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		MaxRequestBodySize: opts.MaxBodySize,
	}
	return s, nil
}

// ListenAndServe serves requests on addr until Shutdown is called. Run
// pruning starts with the listener when a retention is configured.
func (s *Server) ListenAndServe(addr string) error {
	if s.scheduler != nil {
		s.scheduler.Start()
	}
	s.logger.Info("listening", "address", addr)
	return s.server.ListenAndServe(addr)
}

// Shutdown stops the server after in-flight requests complete.
func (s *Server) Shutdown() error {
	err := s.server.Shutdown()
	if s.scheduler != nil {
		err = errors.Join(err, s.scheduler.Shutdown())
	}
	return err
}

// PruneRuns deletes recorded runs older than the retention period.
func (s *Server) PruneRuns(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	before := time.Now().Add(-s.retention)
	n, err := s.recorder.PruneRuns(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned runs", "count", n, "before", before)
	}
	return n, nil
}

// Handler routes a request.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == "/run":
		if !ctx.IsPost() {
			s.methodNotAllowed(ctx, fasthttp.MethodPost)
			return
		}
		s.handleRun(ctx)
	case path == "/runs":
		if !ctx.IsGet() {
			s.methodNotAllowed(ctx, fasthttp.MethodGet)
			return
		}
		s.handleListRuns(ctx)
	case strings.HasPrefix(path, "/runs/"):
		if !ctx.IsGet() {
			s.methodNotAllowed(ctx, fasthttp.MethodGet)
			return
		}
		s.handleGetRun(ctx, strings.TrimPrefix(path, "/runs/"))
	case path == "/healthz":
		s.writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	default:
		s.writeError(ctx, fasthttp.StatusNotFound, "not_found", fmt.Sprintf("no route for %s", path))
	}
}

func (s *Server) handleRun(ctx *fasthttp.RequestCtx) {
	var req RunRequest
	body := ctx.PostBody()
	if bytes.HasPrefix(ctx.Request.Header.ContentType(), []byte("application/json")) {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(ctx, fasthttp.StatusBadRequest, "bad_request", fmt.Sprintf("invalid json: %v", err))
			return
		}
	} else {
		req.Source = string(body)
	}

	result, err := s.engine.Run(context.Background(), req.Source, req.Globals)
	if result == nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "bad_request", err.Error())
		return
	}
	resp := &RunResponse{
		ID:       result.ID,
		Status:   string(result.Status),
		Bindings: result.Bindings,
		Stats:    result.Stats,
		Duration: result.Duration.Seconds(),
	}
	status := fasthttp.StatusOK
	if result.Error != nil {
		resp.Error = errorBody(result.Error, req.Source)
		status = statusForError(result.Error)
	}
	s.writeJSON(ctx, status, resp)
}

func (s *Server) handleGetRun(ctx *fasthttp.RequestCtx, id string) {
	record, err := s.recorder.GetRun(context.Background(), id)
	if err != nil {
		if errors.Is(err, scriptbox.ErrRunNotFound) {
			s.writeError(ctx, fasthttp.StatusNotFound, "not_found", fmt.Sprintf("run %q not found", id))
			return
		}
		s.logger.Error("failed to load run", "run_id", id, "error", err)
		s.writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to load run")
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, record)
}

func (s *Server) handleListRuns(ctx *fasthttp.RequestCtx) {
	limit := 50
	if raw := ctx.QueryArgs().Peek("limit"); len(raw) > 0 {
		n, err := strconv.Atoi(string(raw))
		if err != nil || n <= 0 {
			s.writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := s.recorder.ListRuns(context.Background(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}
	if records == nil {
		records = []*scriptbox.RunRecord{}
	}
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]any{"runs": records})
}

func statusForError(err *scriptbox.ScriptError) int {
	switch err.Type {
	case scriptbox.ErrorTypeSyntax:
		return fasthttp.StatusBadRequest
	case scriptbox.ErrorTypeInternal:
		return fasthttp.StatusInternalServerError
	default:
		return fasthttp.StatusUnprocessableEntity
	}
}

func errorBody(err *scriptbox.ScriptError, src string) *ErrorBody {
	body := &ErrorBody{
		Type:    err.Type,
		Cause:   err.Cause,
		Limit:   err.Limit,
		Reached: err.Reached,
	}
	if line, column, _, ok := err.Location(src); ok {
		offset := err.Offset
		body.Offset = &offset
		body.Line = line
		body.Column = column
	}
	return body
}

func (s *Server) methodNotAllowed(ctx *fasthttp.RequestCtx, allowed string) {
	ctx.Response.Header.Set(fasthttp.HeaderAllow, allowed)
	s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed", fmt.Sprintf("use %s", allowed))
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, errorType, cause string) {
	s.writeJSON(ctx, status, map[string]any{
		"error": &ErrorBody{Type: errorType, Cause: cause},
	})
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		ctx.Error("internal error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}
