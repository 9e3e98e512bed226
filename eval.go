package scriptbox

import (
	"github.com/deepnoodle-ai/scriptbox/ast"
	"github.com/deepnoodle-ai/scriptbox/value"
)

func (c *Context) execStatements(stmts []ast.Statement) error {
	for _, stmt := range stmts {
		if err := c.execStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) execStatement(stmt ast.Statement) error {
	c.stats.Statements++
	switch s := stmt.(type) {
	case *ast.Assignment:
		v, err := c.eval(s.Value)
		if err != nil {
			return err
		}
		c.assign(s.Target, v)
		return nil
	case *ast.FunctionCall:
		return c.callFunction(s)
	case *ast.MethodCall:
		return c.callMethod(s)
	case *ast.If:
		return c.execIf(s)
	case *ast.For:
		return c.execFor(s)
	case *ast.ExpressionStatement:
		_, err := c.eval(s.Expr)
		return err
	default:
		return runtimeError(ErrorTypeInternal, stmt, "unsupported statement %T", stmt)
	}
}

func (c *Context) callFunction(call *ast.FunctionCall) error {
	fn, ok := c.functions[call.Name]
	if !ok {
		return runtimeError(ErrorTypeUndefined, call, "function %q is not defined", call.Name)
	}
	if err := c.pushCall(call); err != nil {
		return err
	}
	defer c.popCall()
	return c.execStatements(fn.Body)
}

func (c *Context) execIf(s *ast.If) error {
	ok, err := c.condition(s.Cond)
	if err != nil {
		return err
	}
	if ok {
		return c.execStatements(s.Then)
	}
	return c.execStatements(s.Else)
}

func (c *Context) execFor(s *ast.For) error {
	if s.Init != nil {
		if err := c.execStatement(s.Init); err != nil {
			return err
		}
	}
	idx := c.enterLoop()
	defer c.exitLoop(idx)
	for {
		if s.Cond != nil {
			ok, err := c.condition(s.Cond)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		if err := c.countIteration(idx, s); err != nil {
			return err
		}
		if err := c.execStatements(s.Body); err != nil {
			return err
		}
		if s.Step != nil {
			if err := c.execStatement(s.Step); err != nil {
				return err
			}
		}
	}
}

// condition evaluates a branch or loop condition. Comparisons produce 1 or
// 0; any Number is accepted and non-zero means true.
func (c *Context) condition(expr ast.Expression) (bool, error) {
	v, err := c.eval(expr)
	if err != nil {
		return false, err
	}
	n, ok := v.(value.Number)
	if !ok {
		return false, runtimeError(ErrorTypeType, expr, "condition must be a number or comparison, found %s", v.Kind())
	}
	return n != 0, nil
}

func (c *Context) eval(expr ast.Expression) (value.Value, error) {
	switch e := expr.(type) {
	case *ast.Literal:
		return e.Value, nil
	case *ast.Identifier:
		v, ok := c.lookup(e.Name)
		if !ok {
			return nil, runtimeError(ErrorTypeUndefined, e, "variable %q is not defined", e.Name)
		}
		return v, nil
	case *ast.ArrayLiteral:
		elements := make([]value.Value, 0, len(e.Elements))
		for _, elemExpr := range e.Elements {
			elem, err := c.eval(elemExpr)
			if err != nil {
				return nil, err
			}
			elements = append(elements, elem)
		}
		arr := value.NewArray(elements...)
		if err := c.checkSize(e, arr); err != nil {
			return nil, err
		}
		return arr, nil
	case *ast.Index:
		return c.evalIndex(e)
	case *ast.UnaryOp:
		operand, err := c.eval(e.Operand)
		if err != nil {
			return nil, err
		}
		n, ok := operand.(value.Number)
		if !ok {
			return nil, runtimeError(ErrorTypeType, e, "operator '%s' cannot be applied to %s", e.Op, operand.Kind())
		}
		if e.Op == "-" {
			return -n, nil
		}
		return n, nil
	case *ast.BinaryOp:
		left, err := c.eval(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.eval(e.Right)
		if err != nil {
			return nil, err
		}
		return c.binaryOp(e, left, right)
	default:
		return nil, runtimeError(ErrorTypeInternal, expr, "unsupported expression %T", expr)
	}
}

func (c *Context) evalIndex(e *ast.Index) (value.Value, error) {
	target, err := c.eval(e.Target)
	if err != nil {
		return nil, err
	}
	arr, ok := target.(*value.Array)
	if !ok {
		return nil, runtimeError(ErrorTypeType, e, "cannot index %s, only arrays support indexing", target.Kind())
	}
	index, err := c.eval(e.Index)
	if err != nil {
		return nil, err
	}
	i, err := toIndex(e, index, arr.Len(), false, ErrorTypeType)
	if err != nil {
		return nil, err
	}
	return arr.Elements[i], nil
}
