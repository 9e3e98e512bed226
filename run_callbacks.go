package scriptbox

import (
	"context"
	"time"
)

// RunCallbacks receives Engine run events
type RunCallbacks interface {
	BeforeRun(ctx context.Context, event *RunEvent)
	AfterRun(ctx context.Context, event *RunEvent)
}

// RunEvent describes a run. Fields describing the outcome are only set for
// AfterRun.
type RunEvent struct {
	RunID        string
	SourceDigest string
	Status       RunStatus
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Bindings     map[string]any
	Stats        Stats
	Error        error
}

// BaseRunCallbacks provides a default implementation that does nothing
type BaseRunCallbacks struct{}

func (n *BaseRunCallbacks) BeforeRun(ctx context.Context, event *RunEvent) {
	// noop
}

func (n *BaseRunCallbacks) AfterRun(ctx context.Context, event *RunEvent) {
	// noop
}

// NewBaseRunCallbacks creates a new no-op callbacks implementation.
// Embed this in your own callbacks to get a default implementation that does nothing.
func NewBaseRunCallbacks() RunCallbacks {
	return &BaseRunCallbacks{}
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []RunCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...RunCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback RunCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeRun(ctx context.Context, event *RunEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeRun(ctx, event)
	}
}

func (c *CallbackChain) AfterRun(ctx context.Context, event *RunEvent) {
	for _, callback := range c.callbacks {
		callback.AfterRun(ctx, event)
	}
}
