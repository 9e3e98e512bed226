package scriptbox

import (
	"github.com/deepnoodle-ai/scriptbox/ast"
	"github.com/deepnoodle-ai/scriptbox/value"
	"github.com/edwingeng/deque"
	"github.com/tevino/abool/v2"
)

// Stats counts the work done by a Context across every program it executed.
type Stats struct {
	Statements int `json:"statements"`
	Calls      int `json:"calls"`
	MaxDepth   int `json:"max_depth"`
	Iterations int `json:"iterations"`
}

// activation is a call stack entry. It only exists for depth accounting:
// calls do not open a new variable scope.
type activation struct {
	function string
	offset   int
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithLimits sets the resource limits. Unset fields use the defaults.
func WithLimits(limits Limits) ContextOption {
	return func(c *Context) {
		c.limits = limits.WithDefaults()
	}
}

// WithBindings seeds the root frame.
func WithBindings(bindings map[string]value.Value) ContextOption {
	return func(c *Context) {
		for name, v := range bindings {
			c.root.Set(name, v)
		}
	}
}

// Context is the execution state for script runs: the root frame, the
// bounded call stack, the iteration counters of the active loops and the
// functions defined so far. A Context must not be used by more than one
// goroutine at a time; Execute returns ErrContextBusy if it is.
type Context struct {
	limits    Limits
	root      *Frame
	functions map[string]*ast.FunctionDef
	calls     deque.Deque
	loops     []int
	stats     Stats
	running   abool.AtomicBool
}

// NewContext returns an empty Context.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		limits:    DefaultLimits(),
		root:      NewFrame(),
		functions: map[string]*ast.FunctionDef{},
		calls:     deque.NewDeque(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the root frame. It is the only variable store and remains
// readable after Execute returns, whether or not it succeeded.
func (c *Context) Root() *Frame {
	return c.root
}

// Limits returns the limits enforced by this Context.
func (c *Context) Limits() Limits {
	return c.limits
}

// Bindings returns the global bindings as plain Go values. Nested arrays are
// expanded at most MaxValueLength elements per binding; a binding that
// expands further is left out and a size_limit_exceeded error is returned.
func (c *Context) Bindings() (map[string]any, error) {
	bindings, err := value.ToGoMap(c.root.Values(), c.valueBounds())
	if err != nil {
		return bindings, walkError(nil, err)
	}
	return bindings, nil
}

// Stats returns the counters accumulated so far.
func (c *Context) Stats() Stats {
	return c.stats
}

// Depth returns the number of active function calls.
func (c *Context) Depth() int {
	return c.calls.Len()
}

// CallStack returns the names of the active functions, outermost first.
func (c *Context) CallStack() []string {
	names := make([]string, 0, c.calls.Len())
	for i := 0; i < c.calls.Len(); i++ {
		names = append(names, c.calls.Peek(i).(activation).function)
	}
	return names
}

// HasFunction reports whether a function with the given name has been
// defined by a program executed in this Context.
func (c *Context) HasFunction(name string) bool {
	_, ok := c.functions[name]
	return ok
}

func (c *Context) lookup(name string) (value.Value, bool) {
	return c.root.Get(name)
}

// assign writes to the frame that owns name. Calls do not create frames, so
// every binding lives in the root frame.
func (c *Context) assign(name string, v value.Value) {
	c.root.Set(name, v)
}

func (c *Context) pushCall(call *ast.FunctionCall) error {
	c.calls.PushBack(activation{function: call.Name, offset: call.Offset})
	depth := c.calls.Len()
	if depth > c.limits.MaxCallDepth {
		c.calls.PopBack()
		return guardError(ErrorTypeStackDepth, call, c.limits.MaxCallDepth, depth,
			"call to %q exceeds maximum call depth of %d", call.Name, c.limits.MaxCallDepth)
	}
	c.stats.Calls++
	if depth > c.stats.MaxDepth {
		c.stats.MaxDepth = depth
	}
	return nil
}

func (c *Context) popCall() {
	c.calls.PopBack()
}

// enterLoop registers a new active loop and returns its counter index.
func (c *Context) enterLoop() int {
	c.loops = append(c.loops, 0)
	return len(c.loops) - 1
}

func (c *Context) exitLoop(idx int) {
	c.loops = c.loops[:idx]
}

// countIteration increments the counter of loop idx and enforces the limit.
func (c *Context) countIteration(idx int, loop *ast.For) error {
	c.loops[idx]++
	if c.loops[idx] > c.limits.MaxIterations {
		return guardError(ErrorTypeIterationLimit, loop, c.limits.MaxIterations, c.loops[idx],
			"loop exceeds maximum of %d iterations", c.limits.MaxIterations)
	}
	c.stats.Iterations++
	return nil
}
