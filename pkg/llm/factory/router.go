// Package factory builds the backend set and routes requests to them
package factory

import (
	"context"

	"github.com/gliderlab/clawbee/pkg/config"
	"github.com/gliderlab/clawbee/pkg/llm"
	"github.com/gliderlab/clawbee/pkg/llm/providers/anthropic"
	"github.com/gliderlab/clawbee/pkg/llm/providers/google"
	"github.com/gliderlab/clawbee/pkg/llm/providers/ollama"
	"github.com/gliderlab/clawbee/pkg/llm/providers/openai"
)

// Router selects the backend adapter for each request. It is constructed
// once at startup from the loaded configuration and passed down explicitly;
// there is no ambient registry.
type Router struct {
	declared    llm.ProviderType
	model       string
	temperature float64
	maxTokens   int
	backends    map[llm.ProviderType]llm.Provider
}

// New builds a Router from the ai section of the configuration. Base URLs
// honor the usual environment overrides so tests and proxies can substitute
// endpoints without touching the config file.
func New(ai config.AIConfig) (*Router, error) {
	declared, err := llm.ParseProviderType(ai.Provider)
	if err != nil {
		return nil, err
	}
	if ai.Model == "" {
		return nil, &llm.ConfigError{Field: "ai.model"}
	}
	// Local backends authenticate by reachability, not by key
	if ai.APIKey == "" && declared != llm.ProviderLocal {
		return nil, &llm.ConfigError{Field: "ai.apiKey"}
	}

	backends := map[llm.ProviderType]llm.Provider{
		llm.ProviderOpenAI: openai.New(llm.Config{
			APIKey:  ai.APIKey,
			BaseURL: config.EnvOrDefault("OPENAI_BASE_URL", ""),
		}),
		llm.ProviderAnthropic: anthropic.New(llm.Config{
			APIKey:  ai.APIKey,
			BaseURL: config.EnvOrDefault("ANTHROPIC_BASE_URL", ""),
		}),
		llm.ProviderGoogle: google.New(llm.Config{
			APIKey:  ai.APIKey,
			BaseURL: config.EnvOrDefault("GOOGLE_BASE_URL", ""),
		}),
	}
	if base := config.EnvOrDefault("OLLAMA_BASE_URL", ""); base != "" {
		backends[llm.ProviderLocal] = ollama.New(llm.Config{BaseURL: base, Model: ai.Model})
	} else {
		backends[llm.ProviderLocal] = ollama.NewForHost(ai.LocalHost, ai.LocalPort, ai.Model)
	}

	return &Router{
		declared:    declared,
		model:       ai.Model,
		temperature: ai.Temperature,
		maxTokens:   ai.MaxTokens,
		backends:    backends,
	}, nil
}

// Resolve maps a declared provider and model name to the concrete backend.
// Emergent mode derives the backend from the model's prefix; everything else
// passes through. Pure function, unit-testable without network access.
func Resolve(declared llm.ProviderType, model string) (llm.ProviderType, error) {
	resolved := declared
	if declared == llm.ProviderEmergent {
		resolved = llm.DetectProviderFromModel(model)
	}
	switch resolved {
	case llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGoogle, llm.ProviderLocal:
		return resolved, nil
	}
	return "", &llm.UnknownProviderError{Provider: string(resolved)}
}

// Backend returns the adapter that will serve requests for the configured
// provider and model.
func (r *Router) Backend() (llm.Provider, error) {
	resolved, err := Resolve(r.declared, r.model)
	if err != nil {
		return nil, err
	}
	p, ok := r.backends[resolved]
	if !ok {
		return nil, &llm.UnknownProviderError{Provider: string(resolved)}
	}
	return p, nil
}

// Model returns the configured model name.
func (r *Router) Model() string { return r.model }

func (r *Router) request(messages []llm.Message) *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	}
}

// Dispatch sends the message list to the resolved backend and returns its
// reply. No retries happen here; retry policy belongs to the caller.
func (r *Router) Dispatch(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	backend, err := r.Backend()
	if err != nil {
		return nil, err
	}
	return backend.Chat(ctx, r.request(messages))
}

// DispatchStream is the streaming variant of Dispatch. Backends without
// native streaming deliver the whole reply as one chunk.
func (r *Router) DispatchStream(ctx context.Context, messages []llm.Message, fn func(*llm.StreamChunk)) error {
	backend, err := r.Backend()
	if err != nil {
		return err
	}
	return backend.ChatStream(ctx, r.request(messages), fn)
}
