// Package anthropic provides the Anthropic Claude backend implementation
package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gliderlab/clawbee/pkg/llm"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 2048
)

// Provider implements llm.Provider for Anthropic. The Messages API takes the
// system prompt as a top-level field, and every message role must be either
// "user" or "assistant".
type Provider struct {
	config llm.Config
	client *http.Client
}

// New creates a new Anthropic provider
func New(cfg llm.Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120
	}
	cfg.Type = llm.ProviderAnthropic
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

// Name returns the provider name
func (p *Provider) Name() string { return "anthropic" }

// Type returns the provider type
func (p *Provider) Type() llm.ProviderType { return llm.ProviderAnthropic }

// GetConfig returns the provider config
func (p *Provider) GetConfig() llm.Config { return p.config }

// Chat implements llm.Provider.Chat
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	system, messages := splitSystem(req.Messages)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	anthropicReq := map[string]any{
		"model":       req.Model,
		"max_tokens":  maxTokens,
		"system":      system,
		"messages":    messages,
		"temperature": req.Temperature,
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+"/messages", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	respBody, err := p.doRequest(httpReq)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &llm.UpstreamError{Provider: llm.ProviderAnthropic, Message: "malformed response: " + err.Error()}
	}

	content := ""
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}

	return &llm.ChatResponse{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: llm.ProviderAnthropic,
		Choices: []llm.Choice{{
			Index:        0,
			Message:      llm.Message{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
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
		ID:    resp.ID,
		Model: resp.Model,
		Choices: []llm.StreamChoice{{
			Index:        0,
			Delta:        llm.StreamDelta{Content: resp.Content(), Role: "assistant"},
			FinishReason: "stop",
		}},
	})
	return nil
}

// splitSystem extracts the system message (if any) from the message list and
// coerces every remaining role to user or assistant; the Messages API
// rejects anything else.
func splitSystem(msgs []llm.Message) (string, []llm.Message) {
	system := ""
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return system, out
}

func (p *Provider) doRequest(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, llm.TransportError(llm.ProviderAnthropic, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.TransportError(llm.ProviderAnthropic, err)
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := string(body)
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &llm.UpstreamError{Provider: llm.ProviderAnthropic, StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}

// Ensure Provider implements llm.Provider
var _ llm.Provider = (*Provider)(nil)
