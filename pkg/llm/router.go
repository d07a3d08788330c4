package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Family identifies a provider API family.
type Family string

// Supported provider families.
const (
	FamilyOpenAI Family = "openai"
	FamilyOllama Family = "ollama"
	FamilyGemini Family = "gemini"
)

var openAIModelPrefixes = []string{"gpt-", "o1"}

// DetectFamily picks the provider family for a model. Gemini models are
// recognised by name; OpenAI models by name or by an OpenAI-style base
// URL; everything else is served by Ollama.
func DetectFamily(model, baseURL string) Family {
	if strings.HasPrefix(model, "gemini") {
		return FamilyGemini
	}
	for _, prefix := range openAIModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return FamilyOpenAI
		}
	}
	if strings.Contains(baseURL, "/v1") {
		return FamilyOpenAI
	}
	return FamilyOllama
}

// ProviderConfig holds the connection settings shared by all providers
// a Router may create.
type ProviderConfig struct {
	// BaseURL overrides the OpenAI or Ollama endpoint.
	BaseURL string

	// OpenAIAPIKey authenticates OpenAI-compatible endpoints.
	OpenAIAPIKey string

	// GeminiAPIKey authenticates the Gemini API.
	GeminiAPIKey string

	// HTTPClient is used by the HTTP providers. Nil uses their defaults.
	HTTPClient *http.Client
}

// NewClient builds a client for one family.
func NewClient(ctx context.Context, family Family, cfg ProviderConfig) (Client, error) {
	switch family {
	case FamilyOpenAI:
		baseURL := cfg.BaseURL
		if !strings.Contains(baseURL, "/v1") {
			baseURL = ""
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, baseURL, WithOpenAIHTTPClient(cfg.HTTPClient)), nil
	case FamilyOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.HTTPClient), nil
	case FamilyGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey)
	default:
		return nil, fmt.Errorf("unknown provider family %q", family)
	}
}

// Router is a Client that dispatches each request to the provider family
// its model belongs to. Provider clients are created on first use.
type Router struct {
	cfg   ProviderConfig
	retry RetryConfig

	mu      sync.Mutex
	clients map[Family]Client
}

// NewRouter creates a Router. Every provider it creates is wrapped with
// retry using retry.
func NewRouter(cfg ProviderConfig, retry RetryConfig) *Router {
	return &Router{cfg: cfg, retry: retry, clients: make(map[Family]Client)}
}

var _ Client = (*Router)(nil)

// Complete implements Client.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	client, err := r.clientFor(ctx, DetectFamily(req.Model, r.cfg.BaseURL))
	if err != nil {
		return nil, err
	}
	return client.Complete(ctx, req)
}

func (r *Router) clientFor(ctx context.Context, family Family) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[family]; ok {
		return c, nil
	}
	c, err := NewClient(ctx, family, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", family, err)
	}
	c = NewRetryingClient(c, r.retry)
	r.clients[family] = c
	return c, nil
}
