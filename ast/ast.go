// Package ast defines the syntax tree produced by the parser. Nodes are
// immutable once built and may be evaluated any number of times.
package ast

import (
	"strings"

	"github.com/deepnoodle-ai/scriptbox/value"
)

// Node is implemented by every syntax tree node.
type Node interface {
	// Pos returns the zero-based character offset of the node in the source.
	Pos() int
	String() string
}

// Statement is a node that runs for its effect.
type Statement interface {
	Node
	statementNode()
}

// Expression is a node that produces a value.
type Expression interface {
	Node
	expressionNode()
}

// Program is a parsed script: its function definitions and the ordered
// top-level statements.
type Program struct {
	Functions  []*FunctionDef
	Statements []Statement
}

func (p *Program) Pos() int { return 0 }

func (p *Program) String() string {
	var lines []string
	for _, fn := range p.Functions {
		lines = append(lines, fn.String())
	}
	for _, stmt := range p.Statements {
		lines = append(lines, stmt.String())
	}
	return strings.Join(lines, "\n")
}

// Function returns the definition with the given name.
func (p *Program) Function(name string) (*FunctionDef, bool) {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// FunctionDef is `name() { ... }`.
type FunctionDef struct {
	Offset int
	Name   string
	Body   []Statement
}

func (f *FunctionDef) Pos() int { return f.Offset }

func (f *FunctionDef) String() string {
	return f.Name + "() " + blockString(f.Body)
}

// FunctionCall is `name();`.
type FunctionCall struct {
	Offset int
	Name   string
}

func (c *FunctionCall) Pos() int       { return c.Offset }
func (c *FunctionCall) statementNode() {}
func (c *FunctionCall) String() string { return c.Name + "();" }

// Assignment is `target = value;`.
type Assignment struct {
	Offset int
	Target string
	Value  Expression
}

func (a *Assignment) Pos() int       { return a.Offset }
func (a *Assignment) statementNode() {}
func (a *Assignment) String() string { return a.Target + " = " + a.Value.String() + ";" }

// MethodCall is `target.method(args...);`. The target is always a variable
// name so that string methods can rebind it.
type MethodCall struct {
	Offset int
	Target string
	Method string
	Args   []Expression
}

func (m *MethodCall) Pos() int       { return m.Offset }
func (m *MethodCall) statementNode() {}

func (m *MethodCall) String() string {
	args := make([]string, len(m.Args))
	for i, arg := range m.Args {
		args[i] = arg.String()
	}
	return m.Target + "." + m.Method + "(" + strings.Join(args, ", ") + ");"
}

// ExpressionStatement evaluates an expression and discards the result.
type ExpressionStatement struct {
	Expr Expression
}

func (e *ExpressionStatement) Pos() int       { return e.Expr.Pos() }
func (e *ExpressionStatement) statementNode() {}
func (e *ExpressionStatement) String() string { return e.Expr.String() + ";" }

// If runs Then when Cond is non-zero, otherwise Else (which may be nil).
type If struct {
	Offset int
	Cond   Expression
	Then   []Statement
	Else   []Statement
}

func (i *If) Pos() int       { return i.Offset }
func (i *If) statementNode() {}

func (i *If) String() string {
	s := "if (" + i.Cond.String() + ") " + blockString(i.Then)
	if i.Else != nil {
		s += " else " + blockString(i.Else)
	}
	return s
}

// For is the classic init/condition/step loop. Any of the three clauses may
// be nil.
type For struct {
	Offset int
	Init   Statement
	Cond   Expression
	Step   Statement
	Body   []Statement
}

func (f *For) Pos() int       { return f.Offset }
func (f *For) statementNode() {}

func (f *For) String() string {
	clause := func(n Node) string {
		if n == nil {
			return ""
		}
		return strings.TrimSuffix(n.String(), ";")
	}
	var cond string
	if f.Cond != nil {
		cond = f.Cond.String()
	}
	return "for (" + clause(f.Init) + "; " + cond + "; " + clause(f.Step) + ") " + blockString(f.Body)
}

// BinaryOp is `left op right` for arithmetic and comparison operators.
type BinaryOp struct {
	Offset int // offset of the operator
	Op     string
	Left   Expression
	Right  Expression
}

func (b *BinaryOp) Pos() int        { return b.Offset }
func (b *BinaryOp) expressionNode() {}

func (b *BinaryOp) String() string {
	return "(" + b.Left.String() + " " + b.Op + " " + b.Right.String() + ")"
}

// UnaryOp is `-operand` or `+operand`.
type UnaryOp struct {
	Offset  int
	Op      string
	Operand Expression
}

func (u *UnaryOp) Pos() int        { return u.Offset }
func (u *UnaryOp) expressionNode() {}
func (u *UnaryOp) String() string  { return "(" + u.Op + u.Operand.String() + ")" }

// Literal is a number or string constant.
type Literal struct {
	Offset int
	Value  value.Value
}

func (l *Literal) Pos() int        { return l.Offset }
func (l *Literal) expressionNode() {}
func (l *Literal) String() string  { return value.Inspect(l.Value) }

// ArrayLiteral is `[a, b, ...]`. Each evaluation builds a new array.
type ArrayLiteral struct {
	Offset   int
	Elements []Expression
}

func (a *ArrayLiteral) Pos() int        { return a.Offset }
func (a *ArrayLiteral) expressionNode() {}

func (a *ArrayLiteral) String() string {
	elements := make([]string, len(a.Elements))
	for i, elem := range a.Elements {
		elements[i] = elem.String()
	}
	return "[" + strings.Join(elements, ", ") + "]"
}

// Identifier reads a variable.
type Identifier struct {
	Offset int
	Name   string
}

func (i *Identifier) Pos() int        { return i.Offset }
func (i *Identifier) expressionNode() {}
func (i *Identifier) String() string  { return i.Name }

// Index is `target[index]`.
type Index struct {
	Offset int // offset of the opening bracket
	Target Expression
	Index  Expression
}

func (i *Index) Pos() int        { return i.Offset }
func (i *Index) expressionNode() {}
func (i *Index) String() string  { return i.Target.String() + "[" + i.Index.String() + "]" }

func blockString(stmts []Statement) string {
	if len(stmts) == 0 {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteString("{\n")
	for _, stmt := range stmts {
		for _, line := range strings.Split(stmt.String(), "\n") {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('}')
	return sb.String()
}
