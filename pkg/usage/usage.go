// Package usage accumulates request, token, and cost metrics reported by
// model calls and tools.
package usage

import (
	"encoding/json"
	"strconv"
	"sync"
)

// Metric keys used in persisted records and tool payloads.
const (
	KeySuccessfulRequests = "successful_requests"
	KeyTotalTokens        = "total_tokens"
	KeyPromptTokens       = "prompt_tokens"
	KeyCompletionTokens   = "completion_tokens"
	KeyTotalCost          = "total_cost"
)

// Totals is a set of usage counters.
type Totals struct {
	SuccessfulRequests int64   `json:"successful_requests"`
	TotalTokens        int64   `json:"total_tokens"`
	PromptTokens       int64   `json:"prompt_tokens"`
	CompletionTokens   int64   `json:"completion_tokens"`
	TotalCost          float64 `json:"total_cost"`
}

// Add returns the sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		SuccessfulRequests: t.SuccessfulRequests + o.SuccessfulRequests,
		TotalTokens:        t.TotalTokens + o.TotalTokens,
		PromptTokens:       t.PromptTokens + o.PromptTokens,
		CompletionTokens:   t.CompletionTokens + o.CompletionTokens,
		TotalCost:          t.TotalCost + o.TotalCost,
	}
}

// IsZero reports whether no usage has been recorded.
func (t Totals) IsZero() bool {
	return t == Totals{}
}

// Map returns the totals keyed by metric name.
func (t Totals) Map() map[string]any {
	return map[string]any{
		KeySuccessfulRequests: t.SuccessfulRequests,
		KeyTotalTokens:        t.TotalTokens,
		KeyPromptTokens:       t.PromptTokens,
		KeyCompletionTokens:   t.CompletionTokens,
		KeyTotalCost:          t.TotalCost,
	}
}

// FromMap reads totals from an untyped payload such as decoded tool JSON.
// Unknown keys and values that are not numbers are ignored.
func FromMap(m map[string]any) Totals {
	var t Totals
	for key, raw := range m {
		v, ok := toFloat(raw)
		if !ok {
			continue
		}
		switch key {
		case KeySuccessfulRequests:
			t.SuccessfulRequests = int64(v)
		case KeyTotalTokens:
			t.TotalTokens = int64(v)
		case KeyPromptTokens:
			t.PromptTokens = int64(v)
		case KeyCompletionTokens:
			t.CompletionTokens = int64(v)
		case KeyTotalCost:
			t.TotalCost = v
		}
	}
	return t
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Call is the usage of one successful model call.
type Call struct {
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
}

// Totals converts the call to counters, counting it as one request.
func (c Call) Totals() Totals {
	return Totals{
		SuccessfulRequests: 1,
		TotalTokens:        c.PromptTokens + c.CompletionTokens,
		PromptTokens:       c.PromptTokens,
		CompletionTokens:   c.CompletionTokens,
		TotalCost:          c.Cost,
	}
}

// Accumulator collects usage from model calls and tools.
//
// It is safe for concurrent use. Every completed call recorded through it
// is reflected exactly once in Snapshot.
type Accumulator struct {
	mu    sync.Mutex
	model Totals
	tool  Totals
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// RecordModelUsage adds one successful model call.
func (a *Accumulator) RecordModelUsage(call Call) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.model = a.model.Add(call.Totals())
}

// RecordToolUsage adds usage reported by a tool.
func (a *Accumulator) RecordToolUsage(t Totals) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tool = a.tool.Add(t)
}

// RecordToolUsageMap adds an untyped usage payload reported by a tool.
func (a *Accumulator) RecordToolUsageMap(m map[string]any) {
	a.RecordToolUsage(FromMap(m))
}

// Snapshot returns the combined model and tool totals.
func (a *Accumulator) Snapshot() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model.Add(a.tool)
}

// Reset zeroes all counters.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.model = Totals{}
	a.tool = Totals{}
}
