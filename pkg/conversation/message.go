// Package conversation models the transcript of one reconciliation session:
// typed messages, the graph state that carries them, a per-session store,
// and the export format persisted with each result.
package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

// Role discriminates the three kinds of transcript entry.
type Role int

// Message roles. The zero value is invalid.
const (
	RoleHuman Role = iota + 1
	RoleTool
	RoleAgent
)

func (r Role) String() string {
	switch r {
	case RoleHuman:
		return "human"
	case RoleTool:
		return "tool"
	case RoleAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if r < RoleHuman || r > RoleAgent {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "human":
		*r = RoleHuman
	case "tool":
		*r = RoleTool
	case "agent":
		*r = RoleAgent
	default:
		return fmt.Errorf("invalid role %q", text)
	}
	return nil
}

// ToolCall is a tool invocation requested by an agent.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"args"`
}

// Message is one transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Sender is the node that produced an agent message.
	Sender string `json:"sender,omitempty"`

	// Name and ToolCallID identify the tool call a tool message answers.
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`

	ToolCalls []ToolCall    `json:"tool_calls,omitempty"`
	Usage     *usage.Totals `json:"usage,omitempty"`
	Model     string        `json:"model,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewHumanMessage creates a human message stamped with the current time.
func NewHumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content, Timestamp: time.Now()}
}

// NewAgentMessage creates an agent message from sender.
func NewAgentMessage(sender, content string, calls ...ToolCall) Message {
	return Message{
		Role:      RoleAgent,
		Sender:    sender,
		Content:   content,
		ToolCalls: calls,
		Timestamp: time.Now(),
	}
}

// NewToolMessage creates the answer to one tool call. u may be nil.
func NewToolMessage(name, callID, content string, u *usage.Totals) Message {
	return Message{
		Role:       RoleTool,
		Name:       name,
		ToolCallID: callID,
		Content:    content,
		Usage:      u,
		Timestamp:  time.Now(),
	}
}

// HasToolCalls reports whether m requests any tool invocation.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAgent && len(m.ToolCalls) > 0
}

// State is the graph state of one session run.
type State struct {
	Messages []Message `json:"messages"`

	// Sender is the node that produced the most recent agent message.
	Sender string `json:"sender"`
}

// Last returns the most recent message.
func (s State) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Append returns a copy of s with msgs added. The receiver's backing
// array is never shared with the result.
func (s State) Append(msgs ...Message) State {
	out := make([]Message, 0, len(s.Messages)+len(msgs))
	out = append(out, s.Messages...)
	out = append(out, msgs...)
	s.Messages = out
	return s
}
