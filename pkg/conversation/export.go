package conversation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

// Record is the persisted form of one transcript entry.
type Record struct {
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	Content   string       `json:"content"`
	Timestamp string       `json:"timestamp"`
	Usage     usage.Totals `json:"usage"`
	ModelName string       `json:"model_name"`
	ToolCalls []ToolCall   `json:"tool_calls,omitempty"`
}

// Export converts a transcript into persisted records.
//
// Human messages are named "input". Agent messages that request tools
// have their content replaced with "Tool calls to a,b"; the calls
// themselves are kept in ToolCalls.
func Export(msgs []Message) []Record {
	records := make([]Record, 0, len(msgs))
	for _, m := range msgs {
		rec := Record{
			Type:      m.Role.String(),
			Content:   m.Content,
			ModelName: m.Model,
		}
		if !m.Timestamp.IsZero() {
			rec.Timestamp = m.Timestamp.Format(time.RFC3339Nano)
		}
		if m.Usage != nil {
			rec.Usage = *m.Usage
		}

		switch m.Role {
		case RoleHuman:
			rec.Name = "input"
		case RoleTool:
			rec.Name = m.Name
		case RoleAgent:
			rec.Name = m.Sender
			if len(m.ToolCalls) > 0 {
				names := make([]string, len(m.ToolCalls))
				for i, c := range m.ToolCalls {
					names[i] = c.Name
				}
				rec.Content = "Tool calls to " + strings.Join(names, ",")
				rec.ToolCalls = m.ToolCalls
			}
			if rec.ModelName == "" {
				rec.ModelName = "unknown"
			}
		}
		records = append(records, rec)
	}
	return records
}

// ExportJSON returns the exported transcript as a JSON array.
func ExportJSON(msgs []Message) ([]byte, error) {
	return json.Marshal(Export(msgs))
}
