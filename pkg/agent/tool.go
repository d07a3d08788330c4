package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/randalmurphal/invoicegraph/pkg/llm"
	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

var (
	// ErrToolNotFound indicates a tool call named an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrMalformedArguments indicates tool arguments that are not valid
	// JSON or do not decode into the tool's argument type.
	ErrMalformedArguments = errors.New("malformed tool arguments")
)

// ToolResult is what a tool returns on success.
type ToolResult struct {
	Content string

	// Usage is model usage the tool itself incurred, if any.
	Usage *usage.Totals
}

// Tool is an external capability an agent may call by name.
type Tool interface {
	Definition() llm.Tool
	Call(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

// ToolFunc implements a tool.
type ToolFunc func(ctx context.Context, args json.RawMessage) (ToolResult, error)

type funcTool struct {
	def llm.Tool
	fn  ToolFunc
}

func (t funcTool) Definition() llm.Tool { return t.def }

func (t funcTool) Call(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	return t.fn(ctx, args)
}

// NewTool adapts a function to the Tool interface.
func NewTool(def llm.Tool, fn ToolFunc) Tool {
	return funcTool{def: def, fn: fn}
}

// NewTypedTool creates a tool whose arguments decode into A.
// Decoding failures are reported as ErrMalformedArguments.
func NewTypedTool[A any](name, description string, schema json.RawMessage, fn func(ctx context.Context, args A) (ToolResult, error)) Tool {
	def := llm.Tool{Name: name, Description: description, Parameters: schema}
	return NewTool(def, func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
		var args A
		if err := json.Unmarshal(raw, &args); err != nil {
			return ToolResult{}, fmt.Errorf("%w: %s: %v", ErrMalformedArguments, name, err)
		}
		return fn(ctx, args)
	})
}

// ToolSet is a registry of tools keyed by name.
type ToolSet struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewToolSet creates a set holding tools.
func NewToolSet(tools ...Tool) *ToolSet {
	ts := &ToolSet{tools: make(map[string]Tool)}
	for _, t := range tools {
		ts.Register(t)
	}
	return ts
}

// Register adds a tool, replacing any tool with the same name.
func (ts *ToolSet) Register(t Tool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	name := t.Definition().Name
	if _, exists := ts.tools[name]; !exists {
		ts.order = append(ts.order, name)
	}
	ts.tools[name] = t
}

// Get returns the tool registered under name.
func (ts *ToolSet) Get(name string) (Tool, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (ts *ToolSet) Names() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return slices.Clone(ts.order)
}

// Definitions returns the definitions offered to the model, in
// registration order.
func (ts *ToolSet) Definitions() []llm.Tool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	defs := make([]llm.Tool, 0, len(ts.order))
	for _, name := range ts.order {
		defs = append(defs, ts.tools[name].Definition())
	}
	return defs
}
