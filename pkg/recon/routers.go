package recon

import (
	"github.com/randalmurphal/invoicegraph/pkg/agent"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph"
)

// Node names.
const (
	NodeFinanceClerk   = "finance_clerk"
	NodeOCRTool        = "call_ocr_tool"
	NodeReconciliation = "senior_reconciliation_agent"
	NodeQueryEngineer  = "invoice_data_engineer"
	NodeQueryTool      = "call_invoice_db_query_tool"
	NodeUpdateEngineer = "invoice_update_data_engineer"
	NodeUpdateTool     = "call_invoice_db_update_tool"
)

// Routing tokens agents put in their replies.
const (
	TokenNoAttachments = "NO ATTACHMENTS"
	TokenQuery         = "QUERY"
	TokenUpdate        = "UPDATE"
	TokenNA            = "NA"
	TokenError         = "ERROR"
	TokenAsk           = "ASK"
	TokenDone          = "DONE"
)

// clerkRules: tool calls go to OCR; everything else, including
// NO ATTACHMENTS, moves on to reconciliation.
func clerkRules() agent.Rules {
	return agent.Rules{
		ToolDest: NodeOCRTool,
		Tokens: []agent.Rule{
			{Token: TokenNoAttachments, Dest: NodeReconciliation},
		},
		Default: NodeReconciliation,
	}
}

func reconciliationRules() agent.Rules {
	return agent.Rules{
		Tokens: []agent.Rule{
			{Token: TokenQuery, Dest: NodeQueryEngineer},
			{Token: TokenUpdate, Dest: NodeUpdateEngineer},
			{Token: TokenNA, Dest: flowgraph.END, WholeWord: true},
			{Token: TokenError, Dest: flowgraph.END},
		},
		Default: flowgraph.END,
	}
}

func queryRules() agent.Rules {
	return agent.Rules{
		ToolDest: NodeQueryTool,
		Tokens: []agent.Rule{
			{Token: TokenError, Dest: NodeQueryEngineer},
			{Token: TokenAsk, Dest: NodeReconciliation},
		},
		Default: NodeReconciliation,
	}
}

func updateRules() agent.Rules {
	return agent.Rules{
		ToolDest: NodeUpdateTool,
		Tokens: []agent.Rule{
			{Token: TokenError, Dest: NodeUpdateEngineer},
			{Token: TokenDone, Dest: flowgraph.END},
		},
		Default: NodeReconciliation,
	}
}

// senderLabels maps a tool node's only valid sender back to itself.
func senderLabels(sender string) map[string]string {
	return map[string]string{sender: sender}
}
