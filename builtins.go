package scriptbox

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/deepnoodle-ai/scriptbox/ast"
	"github.com/deepnoodle-ai/scriptbox/value"
)

func (c *Context) binaryOp(e *ast.BinaryOp, left, right value.Value) (value.Value, error) {
	switch e.Op {
	case "+":
		return c.add(e, left, right)
	case "-", "*", "/":
		return arithmetic(e, left, right)
	case "==", "!=":
		if left.Kind() != right.Kind() {
			return nil, mismatch(e, left, right)
		}
		equal, err := value.EqualWithin(left, right, c.valueBounds())
		if err != nil {
			return nil, walkError(e, err)
		}
		if e.Op == "!=" {
			equal = !equal
		}
		return boolean(equal), nil
	case "<", ">", "<=", ">=":
		return compare(e, left, right)
	default:
		return nil, runtimeError(ErrorTypeInternal, e, "unsupported operator %q", e.Op)
	}
}

func (c *Context) add(e *ast.BinaryOp, left, right value.Value) (value.Value, error) {
	switch l := left.(type) {
	case value.Number:
		if r, ok := right.(value.Number); ok {
			return l + r, nil
		}
	case value.String:
		if r, ok := right.(value.String); ok {
			result := l + r
			if err := c.checkSize(e, result); err != nil {
				return nil, err
			}
			return result, nil
		}
	case *value.Array:
		if r, ok := right.(*value.Array); ok {
			if err := c.checkLength(e, l.Len()+r.Len()); err != nil {
				return nil, err
			}
			return l.Concat(r), nil
		}
	}
	return nil, runtimeError(ErrorTypeType, e, "cannot combine %s and %s with '+'", left.Kind(), right.Kind())
}

func arithmetic(e *ast.BinaryOp, left, right value.Value) (value.Value, error) {
	l, lok := left.(value.Number)
	r, rok := right.(value.Number)
	if !lok || !rok {
		return nil, runtimeError(ErrorTypeType, e, "operator '%s' requires numbers, found %s and %s", e.Op, left.Kind(), right.Kind())
	}
	switch e.Op {
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	default:
		if r == 0 {
			return nil, runtimeError(ErrorTypeArithmetic, e, "division by zero")
		}
		return l / r, nil
	}
}

// compare orders two numbers or two strings. Strings compare byte-wise.
func compare(e *ast.BinaryOp, left, right value.Value) (value.Value, error) {
	var cmp int
	switch l := left.(type) {
	case value.Number:
		r, ok := right.(value.Number)
		if !ok {
			return nil, mismatch(e, left, right)
		}
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
	case value.String:
		r, ok := right.(value.String)
		if !ok {
			return nil, mismatch(e, left, right)
		}
		cmp = strings.Compare(string(l), string(r))
	default:
		return nil, runtimeError(ErrorTypeType, e, "operator '%s' cannot be applied to %s", e.Op, left.Kind())
	}
	switch e.Op {
	case "<":
		return boolean(cmp < 0), nil
	case ">":
		return boolean(cmp > 0), nil
	case "<=":
		return boolean(cmp <= 0), nil
	default:
		return boolean(cmp >= 0), nil
	}
}

func mismatch(e *ast.BinaryOp, left, right value.Value) *ScriptError {
	return runtimeError(ErrorTypeType, e, "cannot compare %s and %s with '%s'", left.Kind(), right.Kind(), e.Op)
}

func boolean(b bool) value.Number {
	if b {
		return 1
	}
	return 0
}

// methodSpec describes a built-in method. Functions for strings return the
// new value to bind; functions for arrays mutate the target and return nil.
type methodSpec struct {
	arity int
	fn    func(c *Context, m *ast.MethodCall, target value.Value, args []value.Value) (value.Value, error)
}

var stringMethods = map[string]methodSpec{
	"insert":  {arity: 2, fn: stringInsert},
	"replace": {arity: 2, fn: stringReplace},
}

var arrayMethods = map[string]methodSpec{
	"insert": {arity: 2, fn: arrayInsert},
	"append": {arity: 1, fn: arrayAppend},
}

func (c *Context) callMethod(m *ast.MethodCall) error {
	target, ok := c.lookup(m.Target)
	if !ok {
		return runtimeError(ErrorTypeUndefined, m, "variable %q is not defined", m.Target)
	}
	var methods map[string]methodSpec
	switch target.Kind() {
	case value.KindString:
		methods = stringMethods
	case value.KindArray:
		methods = arrayMethods
	}
	spec, ok := methods[m.Method]
	if !ok {
		return runtimeError(ErrorTypeDispatch, m, "%s has no method %q", target.Kind(), m.Method)
	}
	if len(m.Args) != spec.arity {
		return runtimeError(ErrorTypeDispatch, m, "%s expects %d arguments, got %d", m.Method, spec.arity, len(m.Args))
	}
	args := make([]value.Value, 0, len(m.Args))
	for _, argExpr := range m.Args {
		arg, err := c.eval(argExpr)
		if err != nil {
			return err
		}
		args = append(args, arg)
	}
	result, err := spec.fn(c, m, target, args)
	if err != nil {
		return err
	}
	if result != nil {
		c.assign(m.Target, result)
	}
	return nil
}

func stringInsert(c *Context, m *ast.MethodCall, target value.Value, args []value.Value) (value.Value, error) {
	s := []rune(string(target.(value.String)))
	i, err := toIndex(m, args[0], len(s), true, ErrorTypeDispatch)
	if err != nil {
		return nil, err
	}
	v, ok := args[1].(value.String)
	if !ok {
		return nil, runtimeError(ErrorTypeDispatch, m, "insert into string expects a string value, got %s", args[1].Kind())
	}
	result := value.String(string(s[:i]) + string(v) + string(s[i:]))
	if err := c.checkSize(m, result); err != nil {
		return nil, err
	}
	return result, nil
}

func stringReplace(c *Context, m *ast.MethodCall, target value.Value, args []value.Value) (value.Value, error) {
	old, ok := args[0].(value.String)
	if !ok {
		return nil, runtimeError(ErrorTypeDispatch, m, "replace expects string arguments, got %s", args[0].Kind())
	}
	repl, ok := args[1].(value.String)
	if !ok {
		return nil, runtimeError(ErrorTypeDispatch, m, "replace expects string arguments, got %s", args[1].Kind())
	}
	result := value.String(strings.ReplaceAll(string(target.(value.String)), string(old), string(repl)))
	if err := c.checkSize(m, result); err != nil {
		return nil, err
	}
	return result, nil
}

func arrayInsert(c *Context, m *ast.MethodCall, target value.Value, args []value.Value) (value.Value, error) {
	arr := target.(*value.Array)
	i, err := toIndex(m, args[0], arr.Len(), true, ErrorTypeDispatch)
	if err != nil {
		return nil, err
	}
	if err := c.checkLength(m, arr.Len()+1); err != nil {
		return nil, err
	}
	if err := rejectCycle(m, arr, args[1]); err != nil {
		return nil, err
	}
	arr.Insert(i, args[1])
	return nil, nil
}

func arrayAppend(c *Context, m *ast.MethodCall, target value.Value, args []value.Value) (value.Value, error) {
	arr := target.(*value.Array)
	if err := c.checkLength(m, arr.Len()+1); err != nil {
		return nil, err
	}
	if err := rejectCycle(m, arr, args[0]); err != nil {
		return nil, err
	}
	arr.Append(args[0])
	return nil, nil
}

// toIndex converts v into a position in a sequence of the given length.
// Positions run from 0 to length-1, or to length when inclusive is set. A
// non-number raises kindError.
func toIndex(node ast.Node, v value.Value, length int, inclusive bool, kindError string) (int, error) {
	n, ok := v.(value.Number)
	if !ok {
		return 0, runtimeError(kindError, node, "index must be a number, found %s", v.Kind())
	}
	if !n.IsInteger() {
		return 0, runtimeError(ErrorTypeIndex, node, "index %s is not an integer", n)
	}
	upper := length
	if inclusive {
		upper++
	}
	if n < 0 || float64(n) >= float64(upper) {
		return 0, runtimeError(ErrorTypeIndex, node, "index %s out of range [0, %d)", n, upper)
	}
	return int(n), nil
}

// checkSize enforces MaxValueLength on strings and arrays.
func (c *Context) checkSize(node ast.Node, v value.Value) error {
	switch x := v.(type) {
	case value.String:
		return c.checkLength(node, utf8.RuneCountInString(string(x)))
	case *value.Array:
		return c.checkLength(node, x.Len())
	}
	return nil
}

// rejectCycle refuses to store an array inside itself, directly or through
// any of the arrays it holds.
func rejectCycle(node ast.Node, arr *value.Array, v value.Value) error {
	if sub, ok := v.(*value.Array); ok && sub.Contains(arr) {
		return runtimeError(ErrorTypeType, node, "cannot store an array inside itself")
	}
	return nil
}

// valueBounds caps walks over nested arrays (equality, conversion) at
// MaxValueLength elements in total.
func (c *Context) valueBounds() value.Bounds {
	return value.Bounds{Nodes: c.limits.MaxValueLength, Depth: value.DefaultBounds.Depth}
}

// walkError reports a walk that exceeded valueBounds as a size limit error.
func walkError(node ast.Node, err error) error {
	var limitErr *value.LimitError
	if !errors.As(err, &limitErr) {
		return err
	}
	e := NewScriptError(ErrorTypeSizeLimit, err.Error())
	if node != nil {
		e.Offset = node.Pos()
	}
	e.Limit = limitErr.Limit
	e.Reached = limitErr.Reached
	e.Wrapped = err
	return e
}

func (c *Context) checkLength(node ast.Node, length int) error {
	if length > c.limits.MaxValueLength {
		return guardError(ErrorTypeSizeLimit, node, c.limits.MaxValueLength, length,
			"value length %d exceeds maximum of %d", length, c.limits.MaxValueLength)
	}
	return nil
}
