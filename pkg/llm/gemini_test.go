package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func TestGeminiClient_Complete(t *testing.T) {
	fake := &fakeGenerator{resp: &genai.GenerateContentResponse{
		ModelVersion: "gemini-2.0-flash-001",
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{
				{Text: "QUERY "},
				{Text: "INV-100"},
				{FunctionCall: &genai.FunctionCall{ID: "fc1", Name: "invoice_db_query_tool", Args: map[string]any{"invoice_id": "INV-100"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 20, CandidatesTokenCount: 3},
	}}
	client := &GeminiClient{models: fake}

	resp, err := client.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "reconcile",
		Model:        "gemini-2.0-flash",
		Messages: []Message{
			{Role: RoleUser, Content: "email", Images: []Image{{MIMEType: "image/jpeg", Data: []byte{0xff}}}},
			{Role: RoleAssistant, Content: "ok"},
		},
		Tools: []Tool{{Name: "invoice_db_query_tool", Description: "lookup"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash", fake.model)
	require.Len(t, fake.contents, 2)
	assert.Len(t, fake.contents[0].Parts, 2)
	assert.Equal(t, string(genai.RoleModel), fake.contents[1].Role)
	require.NotNil(t, fake.config.SystemInstruction)
	require.Len(t, fake.config.Tools, 1)
	assert.Equal(t, "invoice_db_query_tool", fake.config.Tools[0].FunctionDeclarations[0].Name)

	assert.Equal(t, "QUERY INV-100", resp.Content)
	assert.Equal(t, "gemini-2.0-flash-001", resp.Model)
	assert.Equal(t, string(genai.FinishReasonStop), resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "fc1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"invoice_id":"INV-100"}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, 23, resp.Usage.TotalTokens)
}

func TestGeminiClient_NoCandidates(t *testing.T) {
	client := &GeminiClient{models: &fakeGenerator{resp: &genai.GenerateContentResponse{}}}
	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "gemini-2.0-flash",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiClient_APIError(t *testing.T) {
	client := &GeminiClient{models: &fakeGenerator{err: genai.APIError{Code: http.StatusServiceUnavailable, Message: "overloaded"}}}
	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "gemini-2.0-flash",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "gemini", apiErr.Provider)
	assert.True(t, IsRetryable(err))
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "")
	assert.Error(t, err)
}
