// Package repl implements an interactive prompt that keeps one scriptbox
// Context across entries.
package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/deepnoodle-ai/scriptbox"
	"github.com/deepnoodle-ai/scriptbox/parser"
	"github.com/deepnoodle-ai/scriptbox/value"
	"github.com/fatih/color"
	"github.com/peterh/liner"
)

const (
	Prompt             = ">> "
	ContinuationPrompt = ".. "
)

var completionWords = []string{"if", "else", "for", "insert", "append", "replace"}

// Session evaluates entries against a single Context.
type Session struct {
	context *scriptbox.Context
	limits  scriptbox.Limits
	out     io.Writer
}

// NewSession creates a session whose Context uses limits.
func NewSession(out io.Writer, limits scriptbox.Limits) *Session {
	return &Session{
		context: scriptbox.NewContext(scriptbox.WithLimits(limits)),
		limits:  limits.WithDefaults(),
		out:     out,
	}
}

// Context returns the session's Context.
func (s *Session) Context() *scriptbox.Context {
	return s.context
}

// Eval parses and executes one complete entry, printing the bindings it
// changed or the error it raised.
func (s *Session) Eval(src string) error {
	program, err := scriptbox.Parse(src, parser.WithMaxNestingDepth(s.limits.MaxNestingDepth))
	if err != nil {
		s.printError(src, err)
		return err
	}
	before := s.context.Root().Values()
	err = program.Execute(s.context)
	for _, name := range s.context.Root().Names() {
		v, _ := s.context.Root().Get(name)
		if old, ok := before[name]; ok && old == v {
			// Arrays are compared by identity so in-place mutation is shown.
			if _, isArray := v.(*value.Array); !isArray {
				continue
			}
		}
		fmt.Fprintf(s.out, "%s = %s\n", color.CyanString(name), value.Inspect(v))
	}
	if err != nil {
		s.printError(src, err)
	}
	return err
}

// Command handles a line starting with ':'. It reports false for unknown
// commands.
func (s *Session) Command(cmd string) bool {
	switch strings.TrimSpace(cmd) {
	case ":vars":
		for _, name := range s.context.Root().Names() {
			v, _ := s.context.Root().Get(name)
			fmt.Fprintf(s.out, "%s = %s\n", color.CyanString(name), value.Inspect(v))
		}
	case ":stats":
		stats := s.context.Stats()
		fmt.Fprintf(s.out, "statements=%d calls=%d max_depth=%d iterations=%d\n",
			stats.Statements, stats.Calls, stats.MaxDepth, stats.Iterations)
	case ":reset":
		s.context = scriptbox.NewContext(scriptbox.WithLimits(s.limits))
		fmt.Fprintln(s.out, "context cleared")
	case ":help":
		fmt.Fprintln(s.out, ":vars   show all variables")
		fmt.Fprintln(s.out, ":stats  show execution counters")
		fmt.Fprintln(s.out, ":reset  discard variables and functions")
		fmt.Fprintln(s.out, "exit    leave the prompt")
	default:
		return false
	}
	return true
}

func (s *Session) printError(src string, err error) {
	fmt.Fprint(s.out, FormatError(src, err))
}

// FormatError renders err with the offending source line and a caret
// under the failing character when the error carries an offset.
func FormatError(src string, err error) string {
	scriptErr := scriptbox.ClassifyError(err)
	var sb strings.Builder
	sb.WriteString(color.RedString("%s: ", scriptErr.Type))
	sb.WriteString(scriptErr.Cause)
	sb.WriteByte('\n')
	if line, column, text, ok := scriptErr.Location(src); ok {
		prefix := fmt.Sprintf("%4d | ", line)
		sb.WriteString(prefix)
		sb.WriteString(text)
		sb.WriteByte('\n')
		sb.WriteString(strings.Repeat(" ", len(prefix)+column-1))
		sb.WriteString(color.YellowString("^"))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// NeedsMoreInput reports whether src is an incomplete entry: an open
// brace, bracket or parenthesis, or an unterminated block comment.
func NeedsMoreInput(src string) bool {
	tokens, err := parser.NewLexer(src).Tokenize()
	if err != nil {
		var syntaxErr *parser.SyntaxError
		return errors.As(err, &syntaxErr) && syntaxErr.Message == "unterminated block comment"
	}
	depth := 0
	for _, tok := range tokens {
		switch tok.Type {
		case parser.LBRACE, parser.LBRACKET, parser.LPAREN:
			depth++
		case parser.RBRACE, parser.RBRACKET, parser.RPAREN:
			depth--
		}
	}
	return depth > 0
}

// Start runs the interactive prompt until EOF or "exit".
func Start(out io.Writer, limits scriptbox.Limits) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(os.TempDir(), ".scriptbox_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	session := NewSession(out, limits)
	line.SetCompleter(func(line string) []string {
		return complete(line, session.Context().Root().Names())
	})
	fmt.Fprintln(out, "scriptbox: type ':help' for commands, 'exit' or Ctrl+D to quit")

	var buffer strings.Builder
	for {
		prompt := Prompt
		if buffer.Len() > 0 {
			prompt = ContinuationPrompt
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				buffer.Reset()
				fmt.Fprintln(out, "^C")
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return
			}
			fmt.Fprintf(out, "error reading input: %v\n", err)
			return
		}

		trimmed := strings.TrimSpace(input)
		if buffer.Len() == 0 {
			if trimmed == "" {
				continue
			}
			if trimmed == "exit" || trimmed == "quit" {
				return
			}
			if strings.HasPrefix(trimmed, ":") {
				if !session.Command(trimmed) {
					fmt.Fprintf(out, "unknown command %s\n", trimmed)
				}
				continue
			}
		} else {
			buffer.WriteByte('\n')
		}
		buffer.WriteString(input)

		src := buffer.String()
		if NeedsMoreInput(src) {
			continue
		}
		buffer.Reset()
		line.AppendHistory(src)
		session.Eval(src) //nolint:errcheck
	}
}

// complete returns completions of the word before the cursor from the
// keywords, method names and the given variable names.
func complete(line string, names []string) []string {
	start := strings.LastIndexAny(line, " \t.;({[=+-*/<>!,") + 1
	word := line[start:]
	if word == "" {
		return nil
	}
	var matches []string
	for _, candidates := range [][]string{completionWords, names} {
		for _, candidate := range candidates {
			if strings.HasPrefix(candidate, word) {
				matches = append(matches, line[:start]+candidate)
			}
		}
	}
	return matches
}
