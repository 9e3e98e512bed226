package scriptbox

import (
	"sort"

	"github.com/deepnoodle-ai/scriptbox/value"
)

// Frame holds variable bindings.
type Frame struct {
	values map[string]value.Value
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	return &Frame{values: map[string]value.Value{}}
}

// Get returns the value bound to name.
func (f *Frame) Get(name string) (value.Value, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Set binds name to v.
func (f *Frame) Set(name string, v value.Value) {
	f.values[name] = v
}

// Delete removes the binding for name.
func (f *Frame) Delete(name string) {
	delete(f.values, name)
}

// Has reports whether name is bound.
func (f *Frame) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// Names returns the bound names in sorted order.
func (f *Frame) Names() []string {
	names := make([]string, 0, len(f.values))
	for name := range f.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of bindings.
func (f *Frame) Len() int {
	return len(f.values)
}

// Values returns a copy of the bindings. Arrays are not copied, so they
// remain shared with the frame.
func (f *Frame) Values() map[string]value.Value {
	result := make(map[string]value.Value, len(f.values))
	for name, v := range f.values {
		result[name] = v
	}
	return result
}

// ToMap returns the bindings converted to plain Go values within
// value.DefaultBounds. A binding too large to convert is omitted and
// reported in the error.
func (f *Frame) ToMap() (map[string]any, error) {
	return value.ToGoMap(f.values, value.DefaultBounds)
}
