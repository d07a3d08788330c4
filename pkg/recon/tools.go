package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/invoicegraph/pkg/agent"
	"github.com/randalmurphal/invoicegraph/pkg/ledger"
	"github.com/randalmurphal/invoicegraph/pkg/llm"
	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

// Tool names offered to the models.
const (
	QueryToolName  = "invoice_db_query_tool"
	UpdateToolName = "invoice_db_update_tool"
	OCRToolName    = "ocr_tool"
)

// NoResults is the query tool's answer when no transaction matches.
const NoResults = "No results"

var (
	querySchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"invoice_id": {"type": "string", "description": "Invoice ID to look up"}
		},
		"required": ["invoice_id"]
	}`)

	updateSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"invoice_id": {"type": "string", "description": "Invoice ID to mark as reconciled"},
			"email_details": {"type": "string", "description": "Full details of the email that settles the invoice"}
		},
		"required": ["invoice_id", "email_details"]
	}`)

	ocrSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"image_path": {"type": "string", "description": "File name of the attachment"}
		},
		"required": ["image_path"]
	}`)
)

type queryArgs struct {
	InvoiceID string `json:"invoice_id"`
}

type updateArgs struct {
	InvoiceID    string `json:"invoice_id"`
	EmailDetails string `json:"email_details"`
}

type ocrArgs struct {
	ImagePath string `json:"image_path"`
}

// NewQueryTool looks invoices up in the ledger.
func NewQueryTool(store ledger.Store) agent.Tool {
	return agent.NewTypedTool(QueryToolName,
		"Look up the ledger transaction for an invoice ID.",
		querySchema,
		func(ctx context.Context, args queryArgs) (agent.ToolResult, error) {
			if strings.TrimSpace(args.InvoiceID) == "" {
				return agent.ToolResult{}, errors.New("invoice_id is required")
			}
			tx, ok, err := store.Lookup(ctx, args.InvoiceID)
			if err != nil {
				return agent.ToolResult{}, err
			}
			if !ok {
				return agent.ToolResult{Content: NoResults}, nil
			}
			return agent.ToolResult{Content: tx.Report()}, nil
		})
}

// NewUpdateTool marks an invoice's transaction as reconciled.
func NewUpdateTool(store ledger.Store) agent.Tool {
	return agent.NewTypedTool(UpdateToolName,
		"Mark the ledger transaction of an invoice as reconciled and attach the email details.",
		updateSchema,
		func(ctx context.Context, args updateArgs) (agent.ToolResult, error) {
			if strings.TrimSpace(args.InvoiceID) == "" {
				return agent.ToolResult{}, errors.New("invoice_id is required")
			}
			if err := store.MarkReconciled(ctx, args.InvoiceID, args.EmailDetails); err != nil {
				return agent.ToolResult{}, err
			}
			return agent.ToolResult{Content: TokenDone}, nil
		})
}

// OCRTool transcribes image attachments with a vision model.
type OCRTool struct {
	client llm.Client
	model  string
	prompt string
	dir    string
}

// NewOCRTool creates an OCR tool reading attachments from dir.
func NewOCRTool(client llm.Client, model, prompt, dir string) *OCRTool {
	return &OCRTool{client: client, model: model, prompt: prompt, dir: dir}
}

// Definition implements agent.Tool.
func (t *OCRTool) Definition() llm.Tool {
	return llm.Tool{
		Name:        OCRToolName,
		Description: "Transcribe the text of an image attachment.",
		Parameters:  ocrSchema,
	}
}

// Call implements agent.Tool.
func (t *OCRTool) Call(ctx context.Context, raw json.RawMessage) (agent.ToolResult, error) {
	var args ocrArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return agent.ToolResult{}, fmt.Errorf("%w: %s: %v", agent.ErrMalformedArguments, OCRToolName, err)
	}
	if strings.TrimSpace(args.ImagePath) == "" {
		return agent.ToolResult{}, errors.New("image_path is required")
	}

	path := t.resolve(args.ImagePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return agent.ToolResult{}, fmt.Errorf("read attachment: %w", err)
	}

	resp, err := t.client.Complete(ctx, llm.CompletionRequest{
		Model: t.model,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: t.prompt,
			Images:  []llm.Image{{MIMEType: http.DetectContentType(data), Data: data}},
		}},
	})
	if err != nil {
		return agent.ToolResult{}, fmt.Errorf("ocr %s: %w", args.ImagePath, err)
	}

	call := usage.Call{
		Model:            t.model,
		PromptTokens:     int64(resp.Usage.InputTokens),
		CompletionTokens: int64(resp.Usage.OutputTokens),
		Cost:             llm.EstimateCost(t.model, resp.Usage),
	}
	totals := call.Totals()
	return agent.ToolResult{Content: resp.Content, Usage: &totals}, nil
}

// resolve keeps image paths inside the attachments directory.
func (t *OCRTool) resolve(name string) string {
	clean := filepath.Clean(string(filepath.Separator) + name)
	return filepath.Join(t.dir, clean)
}
