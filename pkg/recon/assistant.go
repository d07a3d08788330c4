// Package recon wires the invoice reconciliation workflow: a finance clerk
// that reads attachments, a senior reconciliation agent that decides, and
// two data engineers that query and update the ledger.
//
// Every Assistant compiles its own graph. Assistants are cheap to build and
// are meant to be used for a single document.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/invoicegraph/pkg/agent"
	"github.com/randalmurphal/invoicegraph/pkg/conversation"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph/observability"
	"github.com/randalmurphal/invoicegraph/pkg/ledger"
	"github.com/randalmurphal/invoicegraph/pkg/llm"
	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

// GraphName names the workflow in spans.
const GraphName = "invoice_reconciliation"

// Sampling temperatures per role.
const (
	ClerkTemperature      = 0
	EngineerTemperature   = 0.4
	SupervisorTemperature = 0.8
)

// Models names the model used by each role.
type Models struct {
	Supervisor   string // senior reconciliation agent
	SQL          string // query and update engineers
	FinanceClerk string
	Vision       string // OCR
}

// Config configures an Assistant.
type Config struct {
	// Client serves the agents. Required.
	Client llm.Client
	// Vision serves OCR calls. Defaults to Client.
	Vision llm.Client
	// Ledger backs the query and update tools. Required.
	Ledger ledger.Store

	Models  Models
	Prompts *Prompts // nil uses DefaultPrompts

	// AttachmentsDir holds the files referenced by documents.
	AttachmentsDir string

	MaxSteps       int // 0 uses flowgraph.DefaultMaxSteps
	MaxCorrections int // 0 uses agent.DefaultMaxCorrections

	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
}

// Assistant runs one reconciliation conversation.
type Assistant struct {
	graph    *flowgraph.CompiledGraph[conversation.State]
	usage    *usage.Accumulator
	maxSteps int
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
}

// NewAssistant builds and compiles the workflow graph.
func NewAssistant(cfg Config) (*Assistant, error) {
	if cfg.Client == nil {
		return nil, errors.New("recon: client is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("recon: ledger is required")
	}
	if cfg.Vision == nil {
		cfg.Vision = cfg.Client
	}
	prompts := DefaultPrompts()
	if cfg.Prompts != nil {
		prompts = *cfg.Prompts
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}

	acc := usage.NewAccumulator()
	maxCorrections := agent.DefaultMaxCorrections
	if cfg.MaxCorrections > 0 {
		maxCorrections = cfg.MaxCorrections
	}
	common := func(temp float64, tools *agent.ToolSet) []agent.Option {
		return []agent.Option{
			agent.WithTemperature(temp),
			agent.WithTools(tools),
			agent.WithUsage(acc),
			agent.WithAgentMetrics(cfg.Metrics),
			agent.WithMaxCorrections(maxCorrections),
		}
	}

	ocrTools := agent.NewToolSet(NewOCRTool(cfg.Vision, cfg.Models.Vision, prompts.OCR, cfg.AttachmentsDir))
	queryTools := agent.NewToolSet(NewQueryTool(cfg.Ledger))
	updateTools := agent.NewToolSet(NewUpdateTool(cfg.Ledger))

	clerk := agent.New(NodeFinanceClerk, cfg.Client, cfg.Models.FinanceClerk, prompts.FinanceClerk,
		common(ClerkTemperature, ocrTools)...)
	supervisor := agent.New(NodeReconciliation, cfg.Client, cfg.Models.Supervisor, prompts.Reconciliation,
		common(SupervisorTemperature, nil)...)
	queryEngineer := agent.New(NodeQueryEngineer, cfg.Client, cfg.Models.SQL, prompts.QueryEngineer,
		common(EngineerTemperature, queryTools)...)
	updateEngineer := agent.New(NodeUpdateEngineer, cfg.Client, cfg.Models.SQL, prompts.UpdateEngineer,
		common(EngineerTemperature, updateTools)...)

	clerkR, reconR, queryR, updateR := clerkRules(), reconciliationRules(), queryRules(), updateRules()

	graph, err := flowgraph.NewGraph[conversation.State]().
		AddNode(NodeFinanceClerk, clerk.Node()).
		AddNode(NodeOCRTool, agent.NewGuard(ocrTools, acc).Node()).
		AddNode(NodeReconciliation, supervisor.Node()).
		AddNode(NodeQueryEngineer, queryEngineer.Node()).
		AddNode(NodeQueryTool, agent.NewGuard(queryTools, acc).Node()).
		AddNode(NodeUpdateEngineer, updateEngineer.Node()).
		AddNode(NodeUpdateTool, agent.NewGuard(updateTools, acc).Node()).
		AddConditionalEdges(NodeFinanceClerk, clerkR.Router(), clerkR.Labels()).
		AddConditionalEdges(NodeOCRTool, agent.SenderRouter(), senderLabels(NodeFinanceClerk)).
		AddConditionalEdges(NodeReconciliation, reconR.Router(), reconR.Labels()).
		AddConditionalEdges(NodeQueryEngineer, queryR.Router(), queryR.Labels()).
		AddConditionalEdges(NodeQueryTool, agent.SenderRouter(), senderLabels(NodeQueryEngineer)).
		AddConditionalEdges(NodeUpdateEngineer, updateR.Router(), updateR.Labels()).
		AddConditionalEdges(NodeUpdateTool, agent.SenderRouter(), senderLabels(NodeUpdateEngineer)).
		SetEntry(NodeFinanceClerk).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("compile reconciliation graph: %w", err)
	}

	return &Assistant{
		graph:    graph,
		usage:    acc,
		maxSteps: cfg.MaxSteps,
		metrics:  cfg.Metrics,
		spans:    cfg.Spans,
	}, nil
}

// Outcome is the result of one run.
type Outcome struct {
	SessionID string
	State     conversation.State
	Usage     usage.Totals
}

// Response returns the content of the final message.
func (o Outcome) Response() string {
	last, _ := o.State.Last()
	return last.Content
}

// Run starts a conversation with request as the human message and runs
// it to completion. The outcome is populated even when err is non-nil.
func (a *Assistant) Run(ctx context.Context, logger *slog.Logger, request string) (Outcome, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sessionID := uuid.NewString()
	logger = logger.With("session_id", sessionID)

	fctx := flowgraph.NewContext(ctx,
		flowgraph.WithLogger(logger),
		flowgraph.WithContextRunID(sessionID),
	)
	opts := []flowgraph.RunOption{
		flowgraph.WithMaxSteps(a.maxSteps),
		flowgraph.WithGraphName(GraphName),
		flowgraph.WithRunLogger(logger),
		flowgraph.WithMetrics(a.metrics),
	}
	if a.spans != nil {
		opts = append(opts, flowgraph.WithSpanManager(a.spans))
	}

	initial := conversation.State{Messages: []conversation.Message{conversation.NewHumanMessage(request)}}
	state, err := a.graph.Run(fctx, initial, opts...)

	return Outcome{
		SessionID: sessionID,
		State:     state,
		Usage:     a.usage.Snapshot(),
	}, err
}

// Graph exposes the compiled workflow, for inspection.
func (a *Assistant) Graph() *flowgraph.CompiledGraph[conversation.State] {
	return a.graph
}
