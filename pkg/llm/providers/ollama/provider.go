// Package ollama provides the local Ollama backend implementation
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gliderlab/clawbee/pkg/llm"
)

// Provider implements llm.Provider for a local Ollama server. Messages pass
// through unchanged; there is no system-field extraction and no API key.
type Provider struct {
	config llm.Config
	client *http.Client
}

// New creates a new Ollama provider. BaseURL should point at the local
// server, e.g. http://localhost:11434.
func New(cfg llm.Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 180 // local inference can be slow
	}
	cfg.Type = llm.ProviderLocal
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

// NewForHost creates a provider for an explicit host and port.
func NewForHost(host string, port int, model string) *Provider {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 11434
	}
	return New(llm.Config{
		BaseURL: fmt.Sprintf("http://%s:%d", host, port),
		Model:   model,
	})
}

// Name returns the provider name
func (p *Provider) Name() string { return "ollama" }

// Type returns the provider type
func (p *Provider) Type() llm.ProviderType { return llm.ProviderLocal }

// GetConfig returns the provider config
func (p *Provider) GetConfig() llm.Config { return p.config }

// Chat implements llm.Provider.Chat
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	ollamaReq := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
	}
	// num_predict: 0 suppresses output entirely; leave unset fields off the wire
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		ollamaReq["options"] = options
	}

	body, err := p.doRequest(ctx, "/api/chat", ollamaReq)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Model           string      `json:"model"`
		Message         llm.Message `json:"message"`
		Done            bool        `json:"done"`
		PromptEvalCount int         `json:"prompt_eval_count"`
		EvalCount       int         `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &llm.UpstreamError{Provider: llm.ProviderLocal, Message: "malformed response: " + err.Error()}
	}

	return &llm.ChatResponse{
		Model:    resp.Model,
		Provider: llm.ProviderLocal,
		Choices:  []llm.Choice{{Index: 0, Message: resp.Message, FinishReason: "stop"}},
		Usage: llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// ChatStream implements llm.Provider.ChatStream by synthesizing a single
// chunk from the non-streaming result.
func (p *Provider) ChatStream(ctx context.Context, req *llm.ChatRequest, fn func(*llm.StreamChunk)) error {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return err
	}
	fn(&llm.StreamChunk{
		Model: resp.Model,
		Choices: []llm.StreamChoice{{
			Index:        0,
			Delta:        llm.StreamDelta{Content: resp.Content(), Role: "assistant"},
			FinishReason: "stop",
		}},
	})
	return nil
}

func (p *Provider) doRequest(ctx context.Context, endpoint string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+endpoint, strings.NewReader(string(b)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		err = llm.TransportError(llm.ProviderLocal, err)
		if errors.Is(err, llm.ErrUnreachable) {
			return nil, fmt.Errorf("is Ollama running on %s? %w", p.config.BaseURL, llm.ErrUnreachable)
		}
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.TransportError(llm.ProviderLocal, err)
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		msg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return nil, &llm.UpstreamError{Provider: llm.ProviderLocal, StatusCode: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}

// Ensure Provider implements llm.Provider
var _ llm.Provider = (*Provider)(nil)
