package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests.
//
// By default it returns a fixed response. WithResponses and WithCompletions
// cycle through a list; WithError makes every call fail; WithCompleteFunc
// takes over entirely. All calls are recorded.
type MockClient struct {
	mu           sync.Mutex
	response     string
	completions  []CompletionResponse
	index        int
	err          error
	completeFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Calls records every request in order.
	Calls []CompletionRequest
}

// NewMockClient creates a mock that always answers with response.
func NewMockClient(response string) *MockClient {
	return &MockClient{response: response}
}

// WithResponses cycles through plain text responses.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	completions := make([]CompletionResponse, len(responses))
	for i, r := range responses {
		completions[i] = CompletionResponse{Content: r}
	}
	return m.WithCompletions(completions...)
}

// WithCompletions cycles through full responses, which may carry tool
// calls. Usage is estimated for any response that leaves it empty.
func (m *MockClient) WithCompletions(completions ...CompletionResponse) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = completions
	m.index = 0
	return m
}

// WithError makes every call return err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithCompleteFunc replaces the scripted behaviour with fn.
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeFunc = fn
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn := m.completeFunc
	if fn == nil && m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	var next CompletionResponse
	if fn == nil {
		if len(m.completions) > 0 {
			next = m.completions[m.index%len(m.completions)]
			m.index++
		} else {
			next = CompletionResponse{Content: m.response}
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	resp := next
	resp.ToolCalls = append([]ToolCall(nil), next.ToolCalls...)
	if resp.FinishReason == "" {
		resp.FinishReason = "stop"
		if len(resp.ToolCalls) > 0 {
			resp.FinishReason = "tool_calls"
		}
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Usage == (TokenUsage{}) {
		resp.Usage = newTokenUsage(estimateTokens(req), max(len(resp.Content)/4, 1))
	}
	return &resp, nil
}

// CallCount returns the number of calls made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil.
func (m *MockClient) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	last := m.Calls[len(m.Calls)-1]
	return &last
}

// Reset clears recorded calls and rewinds the response cycle.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.index = 0
}

// estimateTokens approximates prompt size at four characters per token,
// plus a fixed overhead for the request envelope.
func estimateTokens(req CompletionRequest) int {
	chars := len(req.SystemPrompt)
	for _, msg := range req.Messages {
		chars += len(msg.Content)
	}
	return chars/4 + 10
}
