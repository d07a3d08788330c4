package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/invoicegraph/pkg/conversation"
	"github.com/randalmurphal/invoicegraph/pkg/llm"
	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

type lookupArgs struct {
	InvoiceID string `json:"invoice_id"`
}

func lookupTool(delay time.Duration) Tool {
	return NewTypedTool("lookup", "find an invoice", nil, func(ctx context.Context, args lookupArgs) (ToolResult, error) {
		time.Sleep(delay)
		return ToolResult{
			Content: "found " + args.InvoiceID,
			Usage:   &usage.Totals{SuccessfulRequests: 1, TotalTokens: 5},
		}, nil
	})
}

func agentMsg(calls ...conversation.ToolCall) conversation.Message {
	return conversation.NewAgentMessage("invoice_data_engineer", "", calls...)
}

func TestGuard_SuccessPreservesOrder(t *testing.T) {
	acc := usage.NewAccumulator()
	g := NewGuard(NewToolSet(lookupTool(0)), acc)

	out := g.Invoke(context.Background(), discardLogger(), agentMsg(
		conversation.ToolCall{ID: "a", Name: "lookup", Arguments: json.RawMessage(`{"invoice_id":"INV-1"}`)},
		conversation.ToolCall{ID: "b", Name: "lookup", Arguments: json.RawMessage(`{"invoice_id":"INV-2"}`)},
	))

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ToolCallID)
	assert.Equal(t, "found INV-1", out[0].Content)
	assert.Equal(t, "b", out[1].ToolCallID)
	assert.Equal(t, "found INV-2", out[1].Content)
	assert.Equal(t, conversation.RoleTool, out[0].Role)
	assert.Equal(t, "lookup", out[0].Name)
	require.NotNil(t, out[0].Usage)

	assert.Equal(t, usage.Totals{SuccessfulRequests: 2, TotalTokens: 10}, acc.Snapshot())
}

func TestGuard_UnwrapsPayloadEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		want      string
		wantUsage *usage.Totals
	}{
		{
			name:      "envelope",
			content:   `{"content":"INVOICE INV-100","usage":{"successful_requests":1,"total_tokens":12,"model_name":"llava"}}`,
			want:      "INVOICE INV-100",
			wantUsage: &usage.Totals{SuccessfulRequests: 1, TotalTokens: 12},
		},
		{name: "plain text", content: "invoice_id: INV-100", want: "invoice_id: INV-100"},
		{name: "json without usage", content: `{"content":"x"}`, want: `{"content":"x"}`},
		{name: "json array", content: `[1,2]`, want: `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewTool(llm.Tool{Name: "ocr"}, func(context.Context, json.RawMessage) (ToolResult, error) {
				return ToolResult{Content: tt.content}, nil
			})
			acc := usage.NewAccumulator()
			out := NewGuard(NewToolSet(tool), acc).Invoke(context.Background(), discardLogger(),
				agentMsg(conversation.ToolCall{ID: "c1", Name: "ocr"}))

			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].Content)
			assert.Equal(t, tt.wantUsage, out[0].Usage)
			if tt.wantUsage != nil {
				assert.Equal(t, *tt.wantUsage, acc.Snapshot())
			} else {
				assert.True(t, acc.Snapshot().IsZero())
			}
		})
	}
}

func TestGuard_RunsCallsConcurrently(t *testing.T) {
	g := NewGuard(NewToolSet(lookupTool(50*time.Millisecond)), nil)
	calls := make([]conversation.ToolCall, 4)
	for i := range calls {
		calls[i] = conversation.ToolCall{ID: string(rune('a' + i)), Name: "lookup", Arguments: json.RawMessage(`{}`)}
	}

	start := time.Now()
	out := g.Invoke(context.Background(), nil, agentMsg(calls...))
	assert.Len(t, out, 4)
	assert.Less(t, time.Since(start), 180*time.Millisecond)
}

func TestGuard_FailuresAnswerEveryCall(t *testing.T) {
	failing := NewTool(llm.Tool{Name: "fail"}, func(context.Context, json.RawMessage) (ToolResult, error) {
		return ToolResult{}, errors.New("database is locked")
	})
	panicking := NewTool(llm.Tool{Name: "panic"}, func(context.Context, json.RawMessage) (ToolResult, error) {
		panic("nil map")
	})
	tools := NewToolSet(lookupTool(0), failing, panicking)

	tests := []struct {
		name    string
		call    conversation.ToolCall
		wantErr string
	}{
		{"tool error", conversation.ToolCall{ID: "x", Name: "fail"}, "database is locked"},
		{"unknown tool", conversation.ToolCall{ID: "x", Name: "nope"}, "tool not found: nope"},
		{"malformed json", conversation.ToolCall{ID: "x", Name: "lookup", Arguments: json.RawMessage(`{"invoice_id":`)}, "malformed tool arguments"},
		{"wrong types", conversation.ToolCall{ID: "x", Name: "lookup", Arguments: json.RawMessage(`{"invoice_id":5}`)}, "malformed tool arguments"},
		{"panic", conversation.ToolCall{ID: "x", Name: "panic"}, "tool panic panicked: nil map"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok := conversation.ToolCall{ID: "ok", Name: "lookup", Arguments: json.RawMessage(`{"invoice_id":"INV-1"}`)}
			out := NewGuard(tools, nil).Invoke(context.Background(), discardLogger(), agentMsg(ok, tt.call))

			require.Len(t, out, 2)
			assert.Equal(t, "ok", out[0].ToolCallID)
			assert.Equal(t, "x", out[1].ToolCallID)
			for _, m := range out {
				assert.Contains(t, m.Content, tt.wantErr)
				assert.Contains(t, m.Content, "(call "+m.ToolCallID+")")
				assert.Contains(t, m.Content, "\n please fix your mistakes.")
				assert.Nil(t, m.Usage)
			}
		})
	}
}

func TestGuard_SideEffectsAreNotRolledBack(t *testing.T) {
	var writes atomic.Int32
	writer := NewTool(llm.Tool{Name: "write"}, func(context.Context, json.RawMessage) (ToolResult, error) {
		writes.Add(1)
		return ToolResult{Content: "DONE"}, nil
	})
	failing := NewTool(llm.Tool{Name: "fail"}, func(context.Context, json.RawMessage) (ToolResult, error) {
		return ToolResult{}, errors.New("nope")
	})

	out := NewGuard(NewToolSet(writer, failing), nil).Invoke(context.Background(), nil, agentMsg(
		conversation.ToolCall{ID: "1", Name: "write"},
		conversation.ToolCall{ID: "2", Name: "fail"},
	))
	require.Len(t, out, 2)
	assert.Contains(t, out[0].Content, "Error:")
	assert.Equal(t, int32(1), writes.Load())
}

func TestGuard_Node(t *testing.T) {
	g := NewGuard(NewToolSet(lookupTool(0)), nil)
	state := conversation.State{
		Sender: "invoice_data_engineer",
		Messages: []conversation.Message{
			conversation.NewHumanMessage("q"),
			agentMsg(conversation.ToolCall{ID: "c1", Name: "lookup", Arguments: json.RawMessage(`{"invoice_id":"INV-9"}`)}),
		},
	}

	out, err := g.Node()(testCtx(), state)
	require.NoError(t, err)
	require.Len(t, out.Messages, 3)
	assert.Equal(t, "found INV-9", out.Messages[2].Content)
	assert.Equal(t, "invoice_data_engineer", out.Sender)
	assert.NoError(t, conversation.ValidateToolCalls(out.Messages))

	_, err = g.Node()(testCtx(), conversation.State{Messages: []conversation.Message{conversation.NewHumanMessage("q")}})
	assert.ErrorIs(t, err, ErrNoToolCalls)
}

func TestToolSet(t *testing.T) {
	ts := NewToolSet(lookupTool(0))
	ts.Register(NewTool(llm.Tool{Name: "other", Description: "d"}, nil))
	ts.Register(lookupTool(0))

	assert.Equal(t, []string{"lookup", "other"}, ts.Names())
	defs := ts.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "find an invoice", defs[0].Description)

	_, ok := ts.Get("missing")
	assert.False(t, ok)
}
