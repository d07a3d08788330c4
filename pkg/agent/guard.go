package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/invoicegraph/pkg/conversation"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph/observability"
	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

// ErrNoToolCalls is returned by a tool node reached without a pending
// tool call request.
var ErrNoToolCalls = errors.New("last message requests no tool calls")

// Guard executes the tool calls of one agent message and turns every
// failure into tool messages the agent can read.
type Guard struct {
	tools *ToolSet
	usage *usage.Accumulator
}

// NewGuard creates a guard over tools. Usage reported by tools is added
// to acc when acc is non-nil.
func NewGuard(tools *ToolSet, acc *usage.Accumulator) *Guard {
	return &Guard{tools: tools, usage: acc}
}

// Invoke runs every tool call requested by msg concurrently and returns
// one tool message per call, in request order.
//
// If any call fails, every requested call is answered with the same
// error message instead, so the transcript never holds a partial answer.
// Effects of calls that did succeed are not undone.
func (g *Guard) Invoke(ctx context.Context, logger *slog.Logger, msg conversation.Message) []conversation.Message {
	calls := msg.ToolCalls
	results := make([]ToolResult, len(calls))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		eg.Go(func() error {
			res, err := g.call(egCtx, call)
			observability.LogToolCall(logger, call.Name, call.ID, err)
			if err != nil {
				return err
			}
			results[i] = g.record(res)
			return nil
		})
	}

	out := make([]conversation.Message, len(calls))
	if err := eg.Wait(); err != nil {
		for i, call := range calls {
			out[i] = conversation.NewToolMessage(call.Name, call.ID, FailureContent(err, call.ID), nil)
		}
		return out
	}

	for i, call := range calls {
		out[i] = conversation.NewToolMessage(call.Name, call.ID, results[i].Content, results[i].Usage)
	}
	return out
}

// toolPayload is the JSON envelope a tool may return instead of setting
// ToolResult.Usage: {"content": "...", "usage": {"total_tokens": 12, ...}}.
type toolPayload struct {
	Content *string        `json:"content"`
	Usage   map[string]any `json:"usage"`
}

// record adds the usage a tool reported to the accumulator. A result
// without typed usage whose content is a payload envelope is unwrapped.
func (g *Guard) record(res ToolResult) ToolResult {
	if res.Usage == nil {
		var p toolPayload
		if json.Unmarshal([]byte(res.Content), &p) == nil && p.Content != nil && p.Usage != nil {
			totals := usage.FromMap(p.Usage)
			if g.usage != nil {
				g.usage.RecordToolUsageMap(p.Usage)
			}
			return ToolResult{Content: *p.Content, Usage: &totals}
		}
		return res
	}
	if g.usage != nil {
		g.usage.RecordToolUsage(*res.Usage)
	}
	return res
}

// call runs one tool, converting a panic into an error.
func (g *Guard) call(ctx context.Context, call conversation.ToolCall) (res ToolResult, err error) {
	tool, ok := g.tools.Get(call.Name)
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrMalformedArguments, call.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return tool.Call(ctx, args)
}

// FailureContent is the tool message content reported for a failed call.
func FailureContent(err error, callID string) string {
	return fmt.Sprintf("Error: %v (call %s)\n please fix your mistakes.", err, callID)
}

// Node returns a graph node that answers the pending tool calls of the
// last message. The node does not change State.Sender, so routers can
// send the results back to the agent that asked for them.
func (g *Guard) Node() flowgraph.NodeFunc[conversation.State] {
	return func(ctx flowgraph.Context, s conversation.State) (conversation.State, error) {
		last, ok := s.Last()
		if !ok || !last.HasToolCalls() {
			return s, ErrNoToolCalls
		}
		return s.Append(g.Invoke(ctx, ctx.Logger(), last)...), nil
	}
}
