package agent

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/randalmurphal/invoicegraph/pkg/conversation"
)

// HumanLabel is the transcript label of human messages.
const HumanLabel = "Requestor"

// RoleLabel returns the label a message is shown under in chat history:
// "Requestor" for human messages, the title-cased tool name for tool
// messages, and the title-cased sender for agent messages.
func RoleLabel(m conversation.Message) string {
	switch m.Role {
	case conversation.RoleHuman:
		return HumanLabel
	case conversation.RoleTool:
		return titleCase(m.Name)
	case conversation.RoleAgent:
		return titleCase(m.Sender)
	default:
		return ""
	}
}

// titleCase turns "senior_reconciliation_agent" into
// "Senior Reconciliation Agent".
func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// plainContent returns the text of a message. Tool payloads serialised as
// {"content": ...} are unwrapped.
func plainContent(m conversation.Message) string {
	if m.Role != conversation.RoleTool || !strings.HasPrefix(m.Content, "{") {
		return m.Content
	}
	var payload struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal([]byte(m.Content), &payload); err != nil || payload.Content == nil {
		return m.Content
	}
	return *payload.Content
}

// Variables derives prompt variables from a transcript.
//
// chat_history is every non-empty message as a "Label: content" line,
// input is the last such line, and customer_query is the content of the
// last human message.
func Variables(msgs []conversation.Message) map[string]string {
	var history strings.Builder
	vars := map[string]string{
		VarChatHistory:   "",
		VarInput:         "",
		VarCustomerQuery: "",
	}
	for _, m := range msgs {
		label := RoleLabel(m)
		content := plainContent(m)
		if label == "" || content == "" {
			continue
		}
		line := label + ": " + content + "\n"
		history.WriteString(line)
		vars[VarInput] = line
		if m.Role == conversation.RoleHuman {
			vars[VarCustomerQuery] = content
		}
	}
	vars[VarChatHistory] = history.String()
	return vars
}
