// Package llm provides the LLM provider abstraction layer
package llm

import (
	"context"
	"strings"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGoogle    ProviderType = "google"
	ProviderLocal     ProviderType = "local"

	// ProviderEmergent is the universal-key aggregator. It is never dispatched
	// directly; the real backend is derived from the model name.
	ProviderEmergent ProviderType = "emergent"
)

// ParseProviderType normalizes a configured provider string.
// "gemini" is accepted as an alias for "google", "ollama" for "local".
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return ProviderOpenAI, nil
	case "anthropic":
		return ProviderAnthropic, nil
	case "google", "gemini":
		return ProviderGoogle, nil
	case "local", "ollama":
		return ProviderLocal, nil
	case "emergent":
		return ProviderEmergent, nil
	}
	return "", &UnknownProviderError{Provider: s}
}

// DetectProviderFromModel derives the concrete backend from a model name.
// Used by the emergent universal key, where a single credential is routed to
// whichever provider serves the requested model. Pure function, no I/O.
func DetectProviderFromModel(model string) ProviderType {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt"),
		strings.HasPrefix(m, "o1"),
		strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "o4"):
		return ProviderOpenAI
	case strings.HasPrefix(m, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gemini"):
		return ProviderGoogle
	}
	// Unrecognized prefixes fall back to OpenAI, same as the universal-key
	// endpoint itself.
	return ProviderOpenAI
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID       string       `json:"id"`
	Model    string       `json:"model"`
	Provider ProviderType `json:"provider"`
	Choices  []Choice     `json:"choices"`
	Usage    Usage        `json:"usage"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage carries token counts as reported by the upstream API. Best effort:
// providers that do not report usage leave the fields zero.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Content returns the text of the first choice, or "" when empty.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// StreamChunk represents a streaming response chunk
type StreamChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type StreamDelta struct {
	Content string `json:"content"`
	Role    string `json:"role,omitempty"`
}

// Config holds provider configuration
type Config struct {
	Type    ProviderType `json:"type"`
	APIKey  string       `json:"apiKey,omitempty"`
	BaseURL string       `json:"baseUrl,omitempty"`
	Model   string       `json:"model,omitempty"`
	Timeout int          `json:"timeout,omitempty"` // seconds
}

// Provider defines the interface for LLM backends.
//
// ChatStream delivers the reply as an ordered, finite sequence of text deltas.
// Only the OpenAI backend streams natively; the others synthesize a single
// chunk from their non-streaming result so callers can treat both uniformly.
type Provider interface {
	Name() string
	Type() ProviderType
	GetConfig() Config
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req *ChatRequest, fn func(*StreamChunk)) error
}
