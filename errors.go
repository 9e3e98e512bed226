package scriptbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/scriptbox/ast"
	"github.com/deepnoodle-ai/scriptbox/parser"
)

// Error type constants for classification and matching
const (
	// ErrorTypeSyntax indicates the source could not be parsed. This includes
	// operands of incompatible categories that were detected while parsing.
	ErrorTypeSyntax = "syntax_error"

	// ErrorTypeStackDepth indicates the call-depth guard was exceeded
	ErrorTypeStackDepth = "stack_depth_exceeded"

	// ErrorTypeIterationLimit indicates a loop ran more iterations than allowed
	ErrorTypeIterationLimit = "iteration_limit_exceeded"

	// ErrorTypeSizeLimit indicates a string or array grew past the allowed length
	ErrorTypeSizeLimit = "size_limit_exceeded"

	// ErrorTypeType indicates an operator was applied to the wrong categories
	ErrorTypeType = "type_error"

	// ErrorTypeIndex indicates an index or insert position out of range
	ErrorTypeIndex = "index_error"

	// ErrorTypeDispatch indicates a method that does not exist for the target's
	// category, or a call with the wrong number or kind of arguments
	ErrorTypeDispatch = "dispatch_error"

	// ErrorTypeUndefined indicates a read of an unknown variable or a call to
	// an unknown function
	ErrorTypeUndefined = "undefined"

	// ErrorTypeArithmetic indicates division by zero
	ErrorTypeArithmetic = "arithmetic_error"

	// ErrorTypeInternal is used when classifying errors that did not come
	// from the interpreter
	ErrorTypeInternal = "internal_error"
)

// ErrContextBusy is returned when a Context is asked to execute while it is
// already executing another program.
var ErrContextBusy = errors.New("context is already executing a program")

// ScriptError is the error returned by parsing and execution. It supports
// Go's error wrapping patterns with Unwrap().
type ScriptError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Offset  int    `json:"offset"`            // source offset, -1 when unknown
	Limit   int    `json:"limit,omitempty"`   // configured bound for guard errors
	Reached int    `json:"reached,omitempty"` // value that exceeded Limit
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for Go's errors.Is and errors.As
func (e *ScriptError) Unwrap() error {
	return e.Wrapped
}

// IsGuard reports whether the error came from one of the resource guards.
func (e *ScriptError) IsGuard() bool {
	switch e.Type {
	case ErrorTypeStackDepth, ErrorTypeIterationLimit, ErrorTypeSizeLimit:
		return true
	}
	return false
}

// Location returns the 1-based line and column of the error within src,
// along with the text of that line. ok is false when the error carries no
// offset.
func (e *ScriptError) Location(src string) (line, column int, text string, ok bool) {
	if e.Offset < 0 {
		return 0, 0, "", false
	}
	line, column = parser.Position([]rune(src), e.Offset)
	lines := strings.Split(src, "\n")
	if line <= len(lines) {
		text = strings.TrimRight(lines[line-1], "\r")
	}
	return line, column, text, true
}

// NewScriptError creates a ScriptError with the given type and cause and no
// source location.
func NewScriptError(errorType, cause string) *ScriptError {
	return &ScriptError{
		Type:   errorType,
		Cause:  cause,
		Offset: -1,
	}
}

func newSyntaxError(err *parser.SyntaxError) *ScriptError {
	return &ScriptError{
		Type:    ErrorTypeSyntax,
		Cause:   err.Error(),
		Offset:  err.Offset,
		Wrapped: err,
	}
}

func runtimeError(errorType string, node ast.Node, format string, args ...any) *ScriptError {
	return &ScriptError{
		Type:   errorType,
		Cause:  fmt.Sprintf(format, args...),
		Offset: node.Pos(),
	}
}

func guardError(errorType string, node ast.Node, limit, reached int, format string, args ...any) *ScriptError {
	e := runtimeError(errorType, node, format, args...)
	e.Limit = limit
	e.Reached = reached
	return e
}

// ClassifyError converts any error into a ScriptError
func ClassifyError(err error) *ScriptError {
	var scriptError *ScriptError
	if errors.As(err, &scriptError) {
		return scriptError
	}
	var syntaxError *parser.SyntaxError
	if errors.As(err, &syntaxError) {
		return newSyntaxError(syntaxError)
	}
	return &ScriptError{
		Type:    ErrorTypeInternal,
		Cause:   err.Error(),
		Offset:  -1,
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error is of the given type
func MatchesErrorType(err error, errorType string) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Type == errorType
}

// IsGuardError reports whether err was raised by a resource guard: call
// depth, loop iterations or value size.
func IsGuardError(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).IsGuard()
}
