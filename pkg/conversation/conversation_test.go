package conversation

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

func TestRole_Text(t *testing.T) {
	for _, r := range []Role{RoleHuman, RoleTool, RoleAgent} {
		text, err := r.MarshalText()
		require.NoError(t, err)

		var back Role
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, r, back)
	}

	_, err := Role(0).MarshalText()
	assert.Error(t, err)
	var r Role
	assert.Error(t, r.UnmarshalText([]byte("system")))
}

func TestMessage_JSON(t *testing.T) {
	msg := NewAgentMessage("invoice_data_engineer", "", ToolCall{ID: "c1", Name: "invoice_db_query_tool", Arguments: json.RawMessage(`{"invoice_id":"INV-1"}`)})

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(msg, back, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, back.HasToolCalls())
}

func TestState_AppendDoesNotAlias(t *testing.T) {
	base := State{Messages: make([]Message, 0, 4)}
	base = base.Append(NewHumanMessage("hi"))

	a := base.Append(NewAgentMessage("a", "one"))
	b := base.Append(NewAgentMessage("b", "two"))

	last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, "one", last.Content)
	last, _ = b.Last()
	assert.Equal(t, "two", last.Content)
	assert.Len(t, base.Messages, 1)

	_, ok = State{}.Last()
	assert.False(t, ok)
}

func TestStore(t *testing.T) {
	s := NewStore()
	assert.Empty(t, s.Get("missing"))

	s.Append("a", NewHumanMessage("one"))
	s.Append("a", NewAgentMessage("x", "two"), NewAgentMessage("x", "three"))
	s.Append("b", NewHumanMessage("other"))

	got := s.Get("a")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{got[0].Content, got[1].Content, got[2].Content})

	got[0].Content = "mutated"
	assert.Equal(t, "one", s.Get("a")[0].Content)

	s.Clear("a")
	assert.Empty(t, s.Get("a"))
	assert.Equal(t, 1, s.Len("b"))
}

func TestStore_ConcurrentAppend(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append("id", NewHumanMessage("m"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.Len("id"))
}

func TestValidateToolCalls(t *testing.T) {
	valid := []Message{
		NewHumanMessage("go"),
		NewAgentMessage("clerk", "", ToolCall{ID: "c1", Name: "ocr_tool"}),
		NewToolMessage("ocr_tool", "c1", "text", nil),
	}
	assert.NoError(t, ValidateToolCalls(valid))

	orphan := append(valid, NewToolMessage("ocr_tool", "c2", "text", nil))
	assert.ErrorIs(t, ValidateToolCalls(orphan), ErrOrphanToolMessage)

	early := []Message{
		NewToolMessage("ocr_tool", "c1", "text", nil),
		NewAgentMessage("clerk", "", ToolCall{ID: "c1", Name: "ocr_tool"}),
	}
	assert.ErrorIs(t, ValidateToolCalls(early), ErrOrphanToolMessage)
}

func TestExport(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	u := usage.Totals{SuccessfulRequests: 1, TotalTokens: 30, PromptTokens: 20, CompletionTokens: 10}

	msgs := []Message{
		{Role: RoleHuman, Content: "Help to reconcile", Timestamp: ts},
		{Role: RoleAgent, Sender: "finance_clerk", Model: "llava", Usage: &u, Timestamp: ts,
			ToolCalls: []ToolCall{{ID: "c1", Name: "ocr_tool"}, {ID: "c2", Name: "ocr_tool"}}},
		{Role: RoleTool, Name: "ocr_tool", ToolCallID: "c1", Content: "INV-1 $10", Timestamp: ts},
		{Role: RoleAgent, Sender: "senior_reconciliation_agent", Content: "NA", Timestamp: ts},
	}

	want := []Record{
		{Name: "input", Type: "human", Content: "Help to reconcile", Timestamp: "2024-05-01T10:00:00Z"},
		{Name: "finance_clerk", Type: "agent", Content: "Tool calls to ocr_tool,ocr_tool", Timestamp: "2024-05-01T10:00:00Z",
			Usage: u, ModelName: "llava", ToolCalls: msgs[1].ToolCalls},
		{Name: "ocr_tool", Type: "tool", Content: "INV-1 $10", Timestamp: "2024-05-01T10:00:00Z"},
		{Name: "senior_reconciliation_agent", Type: "agent", Content: "NA", Timestamp: "2024-05-01T10:00:00Z", ModelName: "unknown"},
	}

	if diff := cmp.Diff(want, Export(msgs)); diff != "" {
		t.Errorf("Export mismatch (-want +got):\n%s", diff)
	}

	data, err := ExportJSON(msgs)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 4)
	assert.Equal(t, "input", decoded[0]["name"])
}
