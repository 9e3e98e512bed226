package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/deepnoodle-ai/scriptbox"
	"github.com/deepnoodle-ai/scriptbox/mysql"
	"github.com/deepnoodle-ai/scriptbox/postgres"
	"github.com/deepnoodle-ai/scriptbox/repl"
	"github.com/deepnoodle-ai/scriptbox/server"
	"github.com/deepnoodle-ai/scriptbox/sqlite"
	"github.com/fatih/color"
)

const usage = `scriptbox - run sandboxed scripts

Usage:
  scriptbox run [options] <file>     run a script and print its variables
  scriptbox check <file>             parse a script without running it
  scriptbox repl [options]           start an interactive prompt
  scriptbox serve [options]          serve the HTTP API

Run "scriptbox <command> -h" for the options of a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "run":
		return runCommand(args[1:], stdout, stderr)
	case "check":
		return checkCommand(args[1:], stdout, stderr)
	case "repl":
		return replCommand(args[1:], stdout, stderr)
	case "serve":
		return serveCommand(args[1:], stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

// Custom flag type for handling multiple global values
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func runCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "Path to a YAML configuration file")
	jsonOutput := fs.Bool("json", false, "Output the result in JSON format")
	verbose := fs.Bool("v", false, "Enable verbose logging")
	var globalFlags stringSlice
	fs.Var(&globalFlags, "g", "Global variable in format key=value (can be used multiple times)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "run requires exactly one script file")
		return 2
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	globals, err := parseGlobals(globalFlags)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger, err := setupLogger(cfg, *verbose, stderr)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	recorder, closeRecorder, err := openRecorder(context.Background(), cfg.Recorder)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeRecorder()

	engine, err := scriptbox.NewEngine(scriptbox.EngineOptions{
		Limits:    cfg.Limits,
		Logger:    logger,
		Recorder:  recorder,
		Globals:   cfg.Globals,
		CacheSize: cfg.CacheSize,
	})
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	result, err := engine.Run(context.Background(), string(src), globals)
	if result == nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "Error formatting result: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(data))
	} else {
		showResult(stdout, stderr, string(src), result)
	}
	if result.Status != scriptbox.RunStatusCompleted {
		return 1
	}
	return 0
}

func showResult(stdout, stderr io.Writer, src string, result *scriptbox.RunResult) {
	if result.Error != nil {
		fmt.Fprint(stderr, repl.FormatError(src, result.Error))
	}
	names := make([]string, 0, len(result.Bindings))
	for name := range result.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		valueBytes, err := json.Marshal(result.Bindings[name])
		if err != nil {
			fmt.Fprintf(stdout, "%s = %v\n", color.CyanString(name), result.Bindings[name])
			continue
		}
		fmt.Fprintf(stdout, "%s = %s\n", color.CyanString(name), string(valueBytes))
	}
}

func checkCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "check requires at least one script file")
		return 2
	}
	status := 0
	for _, path := range fs.Args() {
		src, err := os.ReadFile(path)
		if err != nil {
			color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
			status = 1
			continue
		}
		if _, err := scriptbox.Parse(string(src)); err != nil {
			fmt.Fprintf(stderr, "%s: ", path)
			fmt.Fprint(stderr, repl.FormatError(string(src), err))
			status = 1
			continue
		}
		fmt.Fprintf(stdout, "%s: %s\n", path, color.GreenString("ok"))
	}
	return status
}

func replCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "Path to a YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := loadConfig(*configFile)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	repl.Start(stdout, cfg.Limits)
	return 0
}

func serveCommand(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "Path to a YAML configuration file")
	addr := fs.String("addr", "", "Listen address (default from config or "+scriptbox.DefaultListenAddress+")")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := loadConfig(*configFile)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	logger, err := setupLogger(cfg, true, stderr)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	recorder, closeRecorder, err := openRecorder(context.Background(), cfg.Recorder)
	if err != nil {
		logger.Error("failed to open recorder", "error", err)
		return 1
	}
	defer closeRecorder()

	engine, err := scriptbox.NewEngine(scriptbox.EngineOptions{
		Limits:    cfg.Limits,
		Logger:    logger,
		Recorder:  recorder,
		Globals:   cfg.Globals,
		CacheSize: cfg.CacheSize,
	})
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		return 1
	}
	srv, err := server.New(server.Options{
		Engine:        engine,
		Recorder:      recorder,
		Logger:        logger,
		Retention:     cfg.Recorder.Retention,
		PruneInterval: cfg.Recorder.PruneInterval,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()
	if err := srv.ListenAndServe(cfg.Listen); err != nil {
		logger.Error("server failed", "error", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (scriptbox.Config, error) {
	if path == "" {
		cfg := scriptbox.Config{}.WithDefaults()
		return cfg, cfg.Validate()
	}
	return scriptbox.LoadConfigFile(path)
}

// parseGlobals parses key=value pairs. Values are parsed as JSON if
// possible, otherwise used as strings.
func parseGlobals(pairs []string) (map[string]any, error) {
	globals := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid global %q, use key=value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			parsed = raw
		}
		globals[key] = parsed
	}
	return globals, nil
}

func setupLogger(cfg scriptbox.Config, verbose bool, w io.Writer) (*slog.Logger, error) {
	level, err := scriptbox.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if !verbose && level < slog.LevelError {
		level = slog.LevelError
	}
	if cfg.LogFormat == "json" {
		return scriptbox.NewJSONLogger(w, level), nil
	}
	return scriptbox.NewLogger(w, level), nil
}

func openRecorder(ctx context.Context, cfg scriptbox.RecorderConfig) (scriptbox.RunRecorder, func(), error) {
	noop := func() {}
	switch cfg.Driver {
	case "", "null":
		return scriptbox.NewNullRunRecorder(), noop, nil
	case "file":
		return scriptbox.NewFileRunRecorder(cfg.Directory), noop, nil
	case "sqlite":
		recorder, err := sqlite.NewRecorder(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return recorder, func() { recorder.Close() }, nil
	case "postgres":
		recorder, err := postgres.NewRecorder(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return recorder, func() { recorder.Close() }, nil
	case "mysql":
		recorder, err := mysql.NewRecorder(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return recorder, func() { recorder.Close() }, nil
	default:
		return nil, noop, errors.New("unknown recorder driver " + cfg.Driver)
	}
}
