// Package google provides the Google Gemini backend implementation
package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gliderlab/clawbee/pkg/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Provider implements llm.Provider for Google Gemini. The generateContent
// API renames the assistant role to "model" and takes the system prompt as a
// top-level systemInstruction rather than a turn in the contents list.
type Provider struct {
	config llm.Config
	client *http.Client
}

// New creates a new Google provider
func New(cfg llm.Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120
	}
	cfg.Type = llm.ProviderGoogle
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

// Name returns the provider name
func (p *Provider) Name() string { return "google" }

// Type returns the provider type
func (p *Provider) Type() llm.ProviderType { return llm.ProviderGoogle }

// GetConfig returns the provider config
func (p *Provider) GetConfig() llm.Config { return p.config }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

// Chat implements llm.Provider.Chat
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var contents []content
	var system string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}

	googleReq := map[string]any{"contents": contents}
	// The API rejects maxOutputTokens: 0; leave unset fields off the wire
	genCfg := map[string]any{}
	if req.Temperature > 0 {
		genCfg["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		genCfg["maxOutputTokens"] = req.MaxTokens
	}
	if len(genCfg) > 0 {
		googleReq["generationConfig"] = genCfg
	}
	if system != "" {
		googleReq["systemInstruction"] = content{Parts: []part{{Text: system}}}
	}

	body, err := p.doRequest(ctx, "/models/"+req.Model+":generateContent", googleReq)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []part `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &llm.UpstreamError{Provider: llm.ProviderGoogle, Message: "malformed response: " + err.Error()}
	}

	text := ""
	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		text = resp.Candidates[0].Content.Parts[0].Text
	}

	return &llm.ChatResponse{
		Model:    req.Model,
		Provider: llm.ProviderGoogle,
		Choices: []llm.Choice{{
			Index:        0,
			Message:      llm.Message{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
		Usage: llm.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
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
	url := p.config.BaseURL + endpoint
	if p.config.APIKey != "" {
		url += "?key=" + p.config.APIKey
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(string(b)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, llm.TransportError(llm.ProviderGoogle, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.TransportError(llm.ProviderGoogle, err)
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &llm.UpstreamError{Provider: llm.ProviderGoogle, StatusCode: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}

// Ensure Provider implements llm.Provider
var _ llm.Provider = (*Provider)(nil)
