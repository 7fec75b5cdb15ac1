// Package llm defines the language model provider interface and its HTTP backends.
// The generator speaks to whichever backend is configured through LLMProvider.
package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Role constants for Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StopReason describes why the model stopped generating.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonMaxTokens = "max_tokens"
)

const (
	defaultMaxTokens   = 8192
	defaultHTTPTimeout = 120 * time.Second
)

// Message is a single turn in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a provider's Complete() call.
type CompletionRequest struct {
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Model        string // override provider default if set

	// JSON asks the backend for a JSON-only response where it supports it.
	JSON bool
}

// CompletionResponse is returned by Complete().
type CompletionResponse struct {
	Text         string
	StopReason   string // StopReasonEndTurn | StopReasonMaxTokens
	InputTokens  int
	OutputTokens int
}

// LLMProvider is the core abstraction for language model backends.
// Implementations: AnthropicProvider, GeminiProvider.
type LLMProvider interface {
	// Complete sends a completion request and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ModelID returns the current model identifier string.
	ModelID() string

	// MaxTokens returns the provider's default max output token limit.
	MaxTokens() int
}

// UserPrompt builds a single-turn request.
func UserPrompt(system, prompt string) CompletionRequest {
	return CompletionRequest{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: prompt}},
	}
}

// clientOptions is shared by the HTTP backends.
type clientOptions struct {
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
	logger    zerolog.Logger
}

// Option configures a provider.
type Option func(*clientOptions)

func WithModel(model string) Option {
	return func(o *clientOptions) {
		if model != "" {
			o.model = model
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(o *clientOptions) { o.maxTokens = n }
}

// WithBaseURL points the provider at another endpoint (proxies, tests).
func WithBaseURL(url string) Option {
	return func(o *clientOptions) { o.baseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.client = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

func newClientOptions(model, baseURL string, opts []Option) clientOptions {
	o := clientOptions{
		model:     model,
		maxTokens: defaultMaxTokens,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: defaultHTTPTimeout},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
