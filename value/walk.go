package value

import (
	"fmt"
	"strings"
)

// Bounds caps the work done walking nested arrays. Nodes counts every
// element visited, so an array referenced twice is counted twice; Depth is
// the deepest array nesting allowed.
type Bounds struct {
	Nodes int
	Depth int
}

// DefaultBounds is used by ToGo, Equal and String.
var DefaultBounds = Bounds{Nodes: 1 << 20, Depth: 1000}

// LimitError is returned when a walk exceeds its Bounds.
type LimitError struct {
	Depth   bool // the nesting bound was exceeded rather than the node bound
	Limit   int
	Reached int
}

func (e *LimitError) Error() string {
	if e.Depth {
		return fmt.Sprintf("arrays nested deeper than %d levels", e.Limit)
	}
	return fmt.Sprintf("arrays expand to more than %d elements", e.Limit)
}

type walker struct {
	bounds Bounds
	nodes  int
}

// enter accounts for visiting the elements of arr at the given nesting
// depth, counting from 1 for the outermost array.
func (w *walker) enter(arr *Array, depth int) error {
	if depth > w.bounds.Depth {
		return &LimitError{Depth: true, Limit: w.bounds.Depth, Reached: depth}
	}
	w.nodes += len(arr.Elements)
	if w.nodes > w.bounds.Nodes {
		return &LimitError{Limit: w.bounds.Nodes, Reached: w.nodes}
	}
	return nil
}

// Contains reports whether target is a itself or is reachable through the
// arrays nested in a.
func (a *Array) Contains(target *Array) bool {
	seen := map[*Array]bool{}
	stack := []*Array{a}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, elem := range cur.Elements {
			if sub, ok := elem.(*Array); ok && !seen[sub] {
				stack = append(stack, sub)
			}
		}
	}
	return false
}

// Clone returns a deep copy of a. Arrays shared within a stay shared in the
// copy, so the copy is never larger than the original.
func (a *Array) Clone() *Array {
	return a.clone(map[*Array]*Array{})
}

func (a *Array) clone(copies map[*Array]*Array) *Array {
	if c, ok := copies[a]; ok {
		return c
	}
	c := &Array{Elements: make([]Value, len(a.Elements))}
	copies[a] = c
	for i, elem := range a.Elements {
		if sub, ok := elem.(*Array); ok {
			c.Elements[i] = sub.clone(copies)
		} else {
			c.Elements[i] = elem
		}
	}
	return c
}

type arrayPair struct {
	x, y *Array
}

// EqualWithin is Equal with explicit bounds. Each pair of arrays is
// compared once, so shared and self-referencing arrays compare in time
// proportional to the number of distinct arrays.
func EqualWithin(a, b Value, bounds Bounds) (bool, error) {
	w := &equalWalk{walker: walker{bounds: bounds}, seen: map[arrayPair]bool{}}
	return w.equal(a, b, 1)
}

type equalWalk struct {
	walker
	seen map[arrayPair]bool
}

func (w *equalWalk) equal(a, b Value, depth int) (bool, error) {
	switch x := a.(type) {
	case Number:
		y, ok := b.(Number)
		return ok && x == y, nil
	case String:
		y, ok := b.(String)
		return ok && x == y, nil
	case *Array:
		y, ok := b.(*Array)
		if !ok {
			return false, nil
		}
		if x == y {
			return true, nil
		}
		if len(x.Elements) != len(y.Elements) {
			return false, nil
		}
		pair := arrayPair{x, y}
		if w.seen[pair] {
			return true, nil
		}
		w.seen[pair] = true
		if err := w.enter(x, depth); err != nil {
			return false, err
		}
		for i := range x.Elements {
			eq, err := w.equal(x.Elements[i], y.Elements[i], depth+1)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	default:
		return false, nil
	}
}

// ToGoWithin is ToGo with explicit bounds.
func ToGoWithin(v Value, bounds Bounds) (any, error) {
	w := &walker{bounds: bounds}
	return w.toGo(v, 1)
}

func (w *walker) toGo(v Value, depth int) (any, error) {
	switch o := v.(type) {
	case Number:
		return float64(o), nil
	case String:
		return string(o), nil
	case *Array:
		if err := w.enter(o, depth); err != nil {
			return nil, err
		}
		result := make([]any, 0, len(o.Elements))
		for _, item := range o.Elements {
			converted, err := w.toGo(item, depth+1)
			if err != nil {
				return nil, err
			}
			result = append(result, converted)
		}
		return result, nil
	default:
		return nil, nil
	}
}

// format writes the display form of arr. When the bounds are exceeded the
// rest of the array is elided as "..." and false is returned.
func (w *walker) format(sb *strings.Builder, arr *Array, depth int) bool {
	if err := w.enter(arr, depth); err != nil {
		sb.WriteString("[...]")
		return false
	}
	sb.WriteByte('[')
	for i, elem := range arr.Elements {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch e := elem.(type) {
		case String:
			sb.WriteString(e.Quote())
		case *Array:
			if !w.format(sb, e, depth+1) {
				sb.WriteByte(']')
				return false
			}
		default:
			sb.WriteString(elem.String())
		}
	}
	sb.WriteByte(']')
	return true
}
