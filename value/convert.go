package value

import (
	"fmt"
	"sort"
)

// ToGo converts a script value to a plain Go value: float64, string or
// []any. Arrays are expanded within DefaultBounds, so an array reachable
// twice is converted twice; a *LimitError is returned when the expansion
// grows past them.
func ToGo(v Value) (any, error) {
	return ToGoWithin(v, DefaultBounds)
}

// FromGo converts a Go value supplied by a host into a script value. Every
// Go numeric kind becomes a Number; slices become new Arrays. An *Array is
// deep-copied so the caller's array is never mutated by a script.
func FromGo(v any) (Value, error) {
	switch o := v.(type) {
	case *Array:
		if o == nil {
			return nil, fmt.Errorf("unsupported value: nil array")
		}
		return o.Clone(), nil
	case Value:
		return o, nil
	case string:
		return String(o), nil
	case int:
		return Number(o), nil
	case int8:
		return Number(o), nil
	case int16:
		return Number(o), nil
	case int32:
		return Number(o), nil
	case int64:
		return Number(o), nil
	case uint:
		return Number(o), nil
	case uint8:
		return Number(o), nil
	case uint16:
		return Number(o), nil
	case uint32:
		return Number(o), nil
	case uint64:
		return Number(o), nil
	case float32:
		return Number(o), nil
	case float64:
		return Number(o), nil
	case []string:
		elements := make([]Value, len(o))
		for i, s := range o {
			elements[i] = String(s)
		}
		return NewArray(elements...), nil
	case []int:
		elements := make([]Value, len(o))
		for i, n := range o {
			elements[i] = Number(n)
		}
		return NewArray(elements...), nil
	case []float64:
		elements := make([]Value, len(o))
		for i, f := range o {
			elements[i] = Number(f)
		}
		return NewArray(elements...), nil
	case []any:
		elements := make([]Value, len(o))
		for i, item := range o {
			converted, err := FromGo(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			elements[i] = converted
		}
		return NewArray(elements...), nil
	case nil:
		return nil, fmt.Errorf("unsupported value: nil")
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// ToGoMap converts a set of bindings to Go values, each within bounds.
// Bindings that exceed the bounds are left out of the result and the first
// such failure is returned, naming the binding.
func ToGoMap(bindings map[string]Value, bounds Bounds) (map[string]any, error) {
	result := make(map[string]any, len(bindings))
	var first error
	for _, name := range sortedNames(bindings) {
		converted, err := ToGoWithin(bindings[name], bounds)
		if err != nil {
			if first == nil {
				first = fmt.Errorf("binding %q: %w", name, err)
			}
			continue
		}
		result[name] = converted
	}
	return result, first
}

func sortedNames(bindings map[string]Value) []string {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
