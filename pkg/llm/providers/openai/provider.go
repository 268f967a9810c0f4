// Package openai provides the OpenAI backend implementation
package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gliderlab/clawbee/pkg/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Provider implements llm.Provider for OpenAI. The system message stays
// inline in the message array; OpenAI accepts it as a regular role.
type Provider struct {
	config llm.Config
	client *http.Client
}

// New creates a new OpenAI provider
func New(cfg llm.Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120
	}
	cfg.Type = llm.ProviderOpenAI
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

// Name returns the provider name
func (p *Provider) Name() string { return "openai" }

// Type returns the provider type
func (p *Provider) Type() llm.ProviderType { return llm.ProviderOpenAI }

// GetConfig returns the provider config
func (p *Provider) GetConfig() llm.Config { return p.config }

// Chat implements llm.Provider.Chat
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	httpReq, err := p.buildRequest(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}

	body, err := p.doRequest(httpReq)
	if err != nil {
		return nil, err
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &llm.UpstreamError{Provider: llm.ProviderOpenAI, Message: "malformed response: " + err.Error()}
	}
	resp.Provider = llm.ProviderOpenAI
	return &resp, nil
}

// ChatStream implements llm.Provider.ChatStream. The response body is an SSE
// stream of "data: {json}" lines terminated by a "[DONE]" sentinel; lines
// that fail to parse are skipped rather than treated as fatal.
func (p *Provider) ChatStream(ctx context.Context, req *llm.ChatRequest, fn func(*llm.StreamChunk)) error {
	streamReq := *req
	streamReq.Stream = true

	httpReq, err := p.buildRequest(ctx, "/chat/completions", &streamReq)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.TransportError(llm.ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return upstreamError(resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}
		var chunk llm.StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // partial chunk, wait for the next line
		}
		fn(&chunk)
	}
	if err := scanner.Err(); err != nil {
		return llm.TransportError(llm.ProviderOpenAI, err)
	}
	return nil
}

func (p *Provider) buildRequest(ctx context.Context, endpoint string, body any) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+endpoint, strings.NewReader(string(b)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	return req, nil
}

func (p *Provider) doRequest(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, llm.TransportError(llm.ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.TransportError(llm.ProviderOpenAI, err)
	}
	if resp.StatusCode >= 400 {
		return nil, upstreamError(resp.StatusCode, body)
	}
	return body, nil
}

func upstreamError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return &llm.UpstreamError{Provider: llm.ProviderOpenAI, StatusCode: status, Message: msg}
}

// Ensure Provider implements llm.Provider
var _ llm.Provider = (*Provider)(nil)
