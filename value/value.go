// Package value defines the closed set of runtime values a script can hold.
package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the category of a Value.
type Kind int

const (
	// KindUnknown is used by the parser for expressions whose category is
	// only known at runtime. No Value ever reports it.
	KindUnknown Kind = iota
	KindNumber
	KindString
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a Number, String or *Array.
type Value interface {

	// Kind returns the category of this value
	Kind() Kind

	// String returns the display form of this value
	String() string

	sealed()
}

// Number is a float64. Integer literals are promoted on parse.
type Number float64

func (Number) Kind() Kind { return KindNumber }
func (Number) sealed()    {}

func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

// IsInteger reports whether n has no fractional part.
func (n Number) IsInteger() bool {
	f := float64(n)
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// String is an immutable piece of text.
type String string

func (String) Kind() Kind { return KindString }
func (String) sealed()    {}

func (s String) String() string {
	return string(s)
}

// Quote returns the string as it would be written in source.
func (s String) Quote() string {
	return strconv.Quote(string(s))
}

// Len returns the length of the string in characters.
func (s String) Len() int {
	return len([]rune(string(s)))
}

// Array is a mutable sequence shared by reference: every variable bound to
// the same *Array observes in-place mutations.
type Array struct {
	Elements []Value
}

// NewArray returns an array holding the given elements. The slice is used
// as-is.
func NewArray(elements ...Value) *Array {
	if elements == nil {
		elements = []Value{}
	}
	return &Array{Elements: elements}
}

func (*Array) Kind() Kind { return KindArray }
func (*Array) sealed()    {}

// String returns the display form of the array. Output is limited to
// DefaultBounds; whatever lies beyond is shown as "[...]".
func (a *Array) String() string {
	var sb strings.Builder
	w := walker{bounds: DefaultBounds}
	w.format(&sb, a, 1)
	return sb.String()
}

// Len returns the number of elements.
func (a *Array) Len() int {
	return len(a.Elements)
}

// Concat returns a new array holding the elements of a followed by those of
// b. Neither operand is modified and the result shares no storage with them.
func (a *Array) Concat(b *Array) *Array {
	elements := make([]Value, 0, len(a.Elements)+len(b.Elements))
	elements = append(elements, a.Elements...)
	elements = append(elements, b.Elements...)
	return &Array{Elements: elements}
}

// Insert places v before position i, mutating the array. i must be in
// [0, Len()].
func (a *Array) Insert(i int, v Value) {
	a.Elements = append(a.Elements, nil)
	copy(a.Elements[i+1:], a.Elements[i:])
	a.Elements[i] = v
}

// Append adds v to the end of the array.
func (a *Array) Append(v Value) {
	a.Elements = append(a.Elements, v)
}

// Equal reports whether a and b hold the same category and contents. Arrays
// are compared element by element. Arrays exceeding DefaultBounds compare
// unequal; use EqualWithin to tell that case apart.
func Equal(a, b Value) bool {
	eq, err := EqualWithin(a, b, DefaultBounds)
	return err == nil && eq
}

// Inspect returns the source-like representation of v: strings are quoted.
func Inspect(v Value) string {
	if s, ok := v.(String); ok {
		return s.Quote()
	}
	return v.String()
}
