package scriptbox

import (
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/scriptbox/ast"
	"github.com/deepnoodle-ai/scriptbox/parser"
)

// Program is a parsed script. It is immutable and may be executed any number
// of times, including concurrently against different Contexts.
type Program struct {
	tree *ast.Program
}

// Parse parses source text into a Program. On failure the error is a
// *ScriptError of type ErrorTypeSyntax whose Offset is the zero-based
// character offset of the first token that could not be parsed.
//
// A "+" whose operands are both literals or other expressions of known
// category is checked here, so "a" + 1 is a syntax error. When either
// operand is an identifier or an index expression its category is only
// known at runtime, and a mismatch such as x + 1 with x bound to a string
// fails during Execute with ErrorTypeType instead.
func Parse(src string, opts ...parser.Option) (*Program, error) {
	tree, err := parser.Parse(src, opts...)
	if err != nil {
		var syntaxErr *parser.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, newSyntaxError(syntaxErr)
		}
		return nil, err
	}
	return &Program{tree: tree}, nil
}

// AST returns the syntax tree. It must not be modified.
func (p *Program) AST() *ast.Program {
	return p.tree
}

// String returns a normalized rendering of the program.
func (p *Program) String() string {
	return p.tree.String()
}

// Execute runs the program against c. Function definitions are registered
// in c before the top-level statements run, replacing earlier definitions
// with the same name. Any failure aborts the run; bindings made before the
// failure remain visible in c.Root().
func (p *Program) Execute(c *Context) error {
	if c == nil || c.root == nil || c.calls == nil {
		return fmt.Errorf("execute requires a context created with NewContext")
	}
	if !c.running.SetToIf(false, true) {
		return ErrContextBusy
	}
	defer c.running.UnSet()

	for _, fn := range p.tree.Functions {
		c.functions[fn.Name] = fn
	}
	return c.execStatements(p.tree.Statements)
}
