package llm

import (
	"errors"
	"testing"
)

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		input    string
		expected ProviderType
	}{
		{"openai", ProviderOpenAI},
		{"anthropic", ProviderAnthropic},
		{"google", ProviderGoogle},
		{"gemini", ProviderGoogle},
		{"local", ProviderLocal},
		{"ollama", ProviderLocal},
		{"emergent", ProviderEmergent},
		{"OpenAI", ProviderOpenAI},
		{"  anthropic  ", ProviderAnthropic},
	}

	for _, tt := range tests {
		got, err := ParseProviderType(tt.input)
		if err != nil {
			t.Errorf("ParseProviderType(%q) returned error: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseProviderType(%q) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}

func TestParseProviderTypeUnknown(t *testing.T) {
	_, err := ParseProviderType("cohere")
	if err == nil {
		t.Fatal("Expected error for unknown provider")
	}
	var upErr *UnknownProviderError
	if !errors.As(err, &upErr) {
		t.Errorf("Expected UnknownProviderError, got %T", err)
	}
	if upErr.Provider != "cohere" {
		t.Errorf("Expected provider 'cohere' in error, got '%s'", upErr.Provider)
	}
}

func TestDetectProviderFromModel(t *testing.T) {
	tests := []struct {
		model    string
		expected ProviderType
	}{
		{"gpt-5.2", ProviderOpenAI},
		{"gpt-4o", ProviderOpenAI},
		{"o1", ProviderOpenAI},
		{"o3", ProviderOpenAI},
		{"o3-pro", ProviderOpenAI},
		{"o4-mini", ProviderOpenAI},
		{"claude-4-sonnet-20250514", ProviderAnthropic},
		{"claude-opus-4-6", ProviderAnthropic},
		{"gemini-2.5-pro", ProviderGoogle},
		{"gemini-2.0-flash", ProviderGoogle},
		{"GPT-4", ProviderOpenAI},
		{"Claude-3-5-haiku-20241022", ProviderAnthropic},
		// unrecognized prefixes fall back to openai
		{"mystery-model", ProviderOpenAI},
		{"llama2", ProviderOpenAI},
		{"", ProviderOpenAI},
	}

	for _, tt := range tests {
		got := DetectProviderFromModel(tt.model)
		if got != tt.expected {
			t.Errorf("DetectProviderFromModel(%q) = %s, expected %s", tt.model, got, tt.expected)
		}
	}
}

func TestDetectProviderFromModelIsPure(t *testing.T) {
	// Same input must always yield the same output
	for i := 0; i < 3; i++ {
		if got := DetectProviderFromModel("claude-4-sonnet-20250514"); got != ProviderAnthropic {
			t.Errorf("call %d: expected anthropic, got %s", i, got)
		}
	}
}

func TestChatResponseContent(t *testing.T) {
	resp := &ChatResponse{
		Choices: []Choice{
			{Message: Message{Role: "assistant", Content: "Hi there!"}},
		},
	}
	if resp.Content() != "Hi there!" {
		t.Errorf("Expected 'Hi there!', got '%s'", resp.Content())
	}

	empty := &ChatResponse{}
	if empty.Content() != "" {
		t.Errorf("Expected empty content, got '%s'", empty.Content())
	}

	var nilResp *ChatResponse
	if nilResp.Content() != "" {
		t.Error("Expected empty content for nil response")
	}
}
