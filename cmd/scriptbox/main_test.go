package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sb")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestRunCommand(t *testing.T) {
	path := writeScript(t, `
fun() {
x = 1000; x = x * -0.1; /* x = x + 10; */ x = x - 1;
s = prefix + "!";
}

fun();
`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "-g", "prefix=hi", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, "prefix = \"hi\"\ns = \"hi!\"\nx = -101\n", stdout.String())
}

func TestRunCommandJSON(t *testing.T) {
	path := writeScript(t, `x = ["a"] + ["a"]; y = x[1];`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "-json", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var result struct {
		Status   string         `json:"status"`
		Bindings map[string]any `json:"bindings"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	require.Equal(t, "completed", result.Status)
	require.Equal(t, "a", result.Bindings["y"])
}

func TestRunCommandFailure(t *testing.T) {
	path := writeScript(t, "n = 0;\nfor (;;) { n = n + 1; }")
	config := filepath.Join(t.TempDir(), "scriptbox.yaml")
	runs := filepath.Join(t.TempDir(), "runs")
	require.NoError(t, os.WriteFile(config, []byte("limits:\n  max_iterations: 5\nrecorder:\n  driver: file\n  directory: "+runs+"\n"), 0644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "-config", config, path}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "iteration_limit_exceeded: loop exceeds maximum of 5 iterations")
	require.Contains(t, stderr.String(), "   2 | for (;;) { n = n + 1; }\n       ^\n")
	require.Equal(t, "n = 5\n", stdout.String())

	data, err := os.ReadFile(filepath.Join(runs, "runs.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"status":"failed"`)
}

func TestCheckCommand(t *testing.T) {
	good := writeScript(t, `x = 1;`)
	bad := writeScript(t, "fun() {\nfor (i=0; i < 1000; i = i +) { a = 100; }\n}\n")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"check", good}, &stdout, &stderr))
	require.Contains(t, stdout.String(), "ok")

	stdout.Reset()
	require.Equal(t, 1, run([]string{"check", bad}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "syntax_error")
	require.Contains(t, stderr.String(), "(offset 34)")
}

func TestUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 2, run(nil, &stdout, &stderr))
	require.Equal(t, 2, run([]string{"launch"}, &stdout, &stderr))
	require.Equal(t, 2, run([]string{"run"}, &stdout, &stderr))
	require.Equal(t, 2, run([]string{"run", "-g", "novalue", "x.sb"}, &stdout, &stderr))
	require.Equal(t, 1, run([]string{"run", filepath.Join(t.TempDir(), "missing.sb")}, &stdout, &stderr))
	require.Equal(t, 0, run([]string{"help"}, &stdout, &stderr))
}

func TestParseGlobals(t *testing.T) {
	globals, err := parseGlobals([]string{"n=5", "s=hello", "list=[1,\"a\"]", "empty="})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"n":     5.0,
		"s":     "hello",
		"list":  []any{1.0, "a"},
		"empty": "",
	}, globals)
}
