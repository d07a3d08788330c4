// Package llm is the model provider boundary: a small Client interface,
// HTTP providers for OpenAI-compatible and Ollama endpoints, a Gemini
// provider, a model-name router, retry with backoff, pricing, and a mock.
package llm

import "context"

// Client sends one completion request to a model provider.
//
// Implementations must be safe for concurrent use and must honour ctx
// cancellation. Transport and provider failures are returned as errors;
// *APIError carries the HTTP status when one is available.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}
