// Package agent provides the building blocks of an agent workflow: model
// backed agent nodes, tool registration, the tool invocation guard, and
// token rule tables for routing between agents.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/randalmurphal/invoicegraph/pkg/conversation"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph/observability"
	"github.com/randalmurphal/invoicegraph/pkg/llm"
	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

// CorrectionPrompt is appended as a human message when a model returns
// neither text nor tool calls.
const CorrectionPrompt = "Respond with a real output."

// DefaultMaxCorrections bounds corrective re-prompts per node execution.
const DefaultMaxCorrections = 5

// ErrDegenerateOutput is returned when a model keeps producing empty
// output after the allowed number of corrections.
var ErrDegenerateOutput = errors.New("model returned no usable output")

// Agent is one model-backed role in a workflow.
type Agent struct {
	name           string
	prompt         Prompt
	client         llm.Client
	model          string
	temperature    float64
	maxTokens      int
	tools          []llm.Tool
	usage          *usage.Accumulator
	metrics        observability.MetricsRecorder
	maxCorrections int
}

// Option configures an Agent.
type Option func(*Agent)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(a *Agent) { a.maxTokens = n }
}

// WithTools offers the tools of ts to the model.
func WithTools(ts *ToolSet) Option {
	return func(a *Agent) {
		if ts != nil {
			a.tools = ts.Definitions()
		}
	}
}

// WithUsage records every successful model call into acc.
func WithUsage(acc *usage.Accumulator) Option {
	return func(a *Agent) { a.usage = acc }
}

// WithAgentMetrics reports token usage to recorder.
func WithAgentMetrics(recorder observability.MetricsRecorder) Option {
	return func(a *Agent) {
		if recorder != nil {
			a.metrics = recorder
		}
	}
}

// WithMaxCorrections sets how many corrective re-prompts are allowed
// before the node fails with ErrDegenerateOutput. Negative values are
// ignored.
func WithMaxCorrections(n int) Option {
	return func(a *Agent) {
		if n >= 0 {
			a.maxCorrections = n
		}
	}
}

// New creates an agent called name that answers with model through client.
func New(name string, client llm.Client, model string, prompt Prompt, opts ...Option) *Agent {
	a := &Agent{
		name:           name,
		prompt:         prompt,
		client:         client,
		model:          model,
		metrics:        observability.NoopMetrics{},
		maxCorrections: DefaultMaxCorrections,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent's node name.
func (a *Agent) Name() string { return a.name }

// Respond asks the model for the next message given the transcript.
//
// Degenerate replies trigger a corrective human message and another call.
// The returned slice holds every message to append to the transcript:
// the corrective prompts, if any, followed by the agent's reply. On error
// the slice holds the corrective prompts sent so far.
func (a *Agent) Respond(ctx context.Context, logger *slog.Logger, transcript []conversation.Message) ([]conversation.Message, error) {
	msgs := transcript
	var added []conversation.Message

	for corrections := 0; ; corrections++ {
		reply, err := a.complete(ctx, msgs)
		if err != nil {
			return added, fmt.Errorf("agent %s: %w", a.name, err)
		}
		observability.LogAgentMessage(logger, a.name, reply.Content, len(reply.ToolCalls))

		if !degenerate(reply) {
			return append(added, reply), nil
		}
		if corrections >= a.maxCorrections {
			return added, fmt.Errorf("agent %s after %d corrections: %w", a.name, corrections, ErrDegenerateOutput)
		}

		correction := conversation.NewHumanMessage(CorrectionPrompt)
		added = append(added, correction)
		msgs = append(msgs[:len(msgs):len(msgs)], correction)
	}
}

// Node returns the agent as a graph node. The node appends its output to
// the transcript and records itself as State.Sender.
func (a *Agent) Node() flowgraph.NodeFunc[conversation.State] {
	return func(ctx flowgraph.Context, s conversation.State) (conversation.State, error) {
		added, err := a.Respond(ctx, ctx.Logger(), s.Messages)
		s = s.Append(added...)
		if err != nil {
			return s, err
		}
		s.Sender = a.name
		return s, nil
	}
}

func (a *Agent) complete(ctx context.Context, transcript []conversation.Message) (conversation.Message, error) {
	system, user, err := a.prompt.Render(Variables(transcript))
	if err != nil {
		return conversation.Message{}, err
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user}},
		Model:        a.model,
		MaxTokens:    a.maxTokens,
		Temperature:  a.temperature,
		Tools:        a.tools,
	})
	if err != nil {
		return conversation.Message{}, err
	}

	call := usage.Call{
		Model:            a.model,
		PromptTokens:     int64(resp.Usage.InputTokens),
		CompletionTokens: int64(resp.Usage.OutputTokens),
		Cost:             llm.EstimateCost(a.model, resp.Usage),
	}
	if a.usage != nil {
		a.usage.RecordModelUsage(call)
	}
	a.metrics.RecordTokenUsage(ctx, a.model, call.PromptTokens, call.CompletionTokens, call.Cost)

	calls := make([]conversation.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		calls = append(calls, conversation.ToolCall{ID: id, Name: tc.Name, Arguments: tc.Arguments})
	}

	msg := conversation.NewAgentMessage(a.name, resp.Content, calls...)
	if len(calls) == 0 {
		msg.ToolCalls = nil
	}
	totals := call.Totals()
	msg.Usage = &totals
	msg.Model = resp.Model
	if msg.Model == "" {
		msg.Model = a.model
	}
	return msg, nil
}

func degenerate(m conversation.Message) bool {
	return len(m.ToolCalls) == 0 && strings.TrimSpace(m.Content) == ""
}
