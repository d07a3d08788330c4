package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/invoicegraph/pkg/conversation"
)

func TestPrompt_Render(t *testing.T) {
	p := Prompt{System: "History:\n${chat_history}Query: ${customer_query}", User: "Request: ${input}"}

	system, user, err := p.Render(map[string]string{
		VarChatHistory:   "Requestor: hi\n",
		VarCustomerQuery: "pay ${amount}",
		VarInput:         "Requestor: hi\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "History:\nRequestor: hi\nQuery: pay ${amount}", system)
	assert.Equal(t, "Request: Requestor: hi\n", user)
	assert.Equal(t, []string{"chat_history", "customer_query", "input"}, p.Variables())
}

func TestPrompt_EmptyUserUsesInput(t *testing.T) {
	_, user, err := Prompt{System: "s"}.Render(map[string]string{VarInput: "last line"})
	require.NoError(t, err)
	assert.Equal(t, "last line", user)
}

func TestPrompt_Missing(t *testing.T) {
	_, _, err := Prompt{System: "${a} ${b}"}.Render(nil)
	var undefined *UndefinedVariableError
	require.ErrorAs(t, err, &undefined)
	assert.Equal(t, []string{"a", "b"}, undefined.Names)
	assert.Contains(t, err.Error(), "undefined prompt variables: a, b")
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "Requestor", RoleLabel(conversation.NewHumanMessage("x")))
	assert.Equal(t, "Invoice Db Query Tool", RoleLabel(conversation.NewToolMessage("invoice_db_query_tool", "1", "x", nil)))
	assert.Equal(t, "Senior Reconciliation Agent", RoleLabel(conversation.NewAgentMessage("senior_reconciliation_agent", "x")))
	assert.Equal(t, "", RoleLabel(conversation.Message{}))
}

func TestVariables(t *testing.T) {
	msgs := []conversation.Message{
		conversation.NewHumanMessage("Help to reconcile INV-1"),
		conversation.NewAgentMessage("finance_clerk", "", conversation.ToolCall{ID: "c1", Name: "ocr_tool"}),
		conversation.NewToolMessage("ocr_tool", "c1", `{"content":"Invoice INV-1 total $10.00","usage":{}}`, nil),
		conversation.NewAgentMessage("finance_clerk", "Attachment read"),
	}

	vars := Variables(msgs)
	assert.Equal(t,
		"Requestor: Help to reconcile INV-1\n"+
			"Ocr Tool: Invoice INV-1 total $10.00\n"+
			"Finance Clerk: Attachment read\n",
		vars[VarChatHistory])
	assert.Equal(t, "Finance Clerk: Attachment read\n", vars[VarInput])
	assert.Equal(t, "Help to reconcile INV-1", vars[VarCustomerQuery])

	empty := Variables(nil)
	assert.Equal(t, "", empty[VarChatHistory])
	assert.Contains(t, empty, VarInput)
}
