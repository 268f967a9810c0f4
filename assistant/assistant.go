// Package assistant orchestrates a single conversational turn: build the
// prompt from memory, dispatch to the configured model, record both sides.
package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/gliderlab/clawbee/memory"
	"github.com/gliderlab/clawbee/pkg/config"
	"github.com/gliderlab/clawbee/pkg/llm"
	"github.com/gliderlab/clawbee/pkg/llm/factory"
	"github.com/gliderlab/clawbee/pkg/skills"
)

// Assistant ties the router and the conversation store together.
type Assistant struct {
	router *factory.Router
	store  *memory.Store
	skills *skills.Registry
	user   string
	window int
}

// Option customizes an Assistant.
type Option func(*Assistant)

// WithSkills enables skill matching before model dispatch.
func WithSkills(reg *skills.Registry) Option {
	return func(a *Assistant) { a.skills = reg }
}

// New builds an Assistant. The context window controls how many stored
// turns are replayed into each prompt.
func New(router *factory.Router, store *memory.Store, cfg *config.Config, opts ...Option) *Assistant {
	a := &Assistant{
		router: router,
		store:  store,
		user:   cfg.User.Name,
		window: config.DefaultContextWindow,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// systemPrompt is rebuilt per turn so the date stays current in long
// running sessions.
func (a *Assistant) systemPrompt() string {
	name := a.user
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("You are ClawBee, a helpful personal AI assistant. You are friendly, efficient, and always try to help the user accomplish their tasks. The user's name is %s. Current date: %s. Keep your responses concise but helpful.",
		name, time.Now().Format("1/2/2006"))
}

func (a *Assistant) buildMessages(text string) []llm.Message {
	recent := a.store.Context(a.window)
	messages := make([]llm.Message, 0, len(recent)+2)
	messages = append(messages, llm.Message{Role: "system", Content: a.systemPrompt()})
	for _, turn := range recent {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: text})
	return messages
}

// Handle runs one turn. The user turn is recorded before dispatch so a
// failed upstream call still leaves the question in history. When the
// reply cannot be persisted, Handle returns the reply alongside the
// persistence error so the caller can still show it.
func (a *Assistant) Handle(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty message")
	}

	if a.skills != nil {
		if reply, ok := a.skills.Match(ctx, text); ok {
			if _, err := a.store.Append("user", text); err != nil {
				return reply, fmt.Errorf("record user turn: %w", err)
			}
			if _, err := a.store.Append("assistant", reply); err != nil {
				return reply, fmt.Errorf("record reply: %w", err)
			}
			return reply, nil
		}
	}

	messages := a.buildMessages(text)
	if _, err := a.store.Append("user", text); err != nil {
		return "", fmt.Errorf("record user turn: %w", err)
	}

	resp, err := a.router.Dispatch(ctx, messages)
	if err != nil {
		return "", err
	}

	reply := resp.Content()
	a.logUsage(resp, messages, reply)

	if _, err := a.store.Append("assistant", reply); err != nil {
		return reply, fmt.Errorf("record reply: %w", err)
	}
	return reply, nil
}

// HandleStream runs one turn with streaming output. Chunks are forwarded
// to fn as they arrive; the assembled reply is recorded once the stream
// ends cleanly.
func (a *Assistant) HandleStream(ctx context.Context, text string, fn func(delta string)) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty message")
	}

	if a.skills != nil {
		if reply, ok := a.skills.Match(ctx, text); ok {
			fn(reply)
			if _, err := a.store.Append("user", text); err != nil {
				return reply, fmt.Errorf("record user turn: %w", err)
			}
			if _, err := a.store.Append("assistant", reply); err != nil {
				return reply, fmt.Errorf("record reply: %w", err)
			}
			return reply, nil
		}
	}

	messages := a.buildMessages(text)
	if _, err := a.store.Append("user", text); err != nil {
		return "", fmt.Errorf("record user turn: %w", err)
	}

	var sb strings.Builder
	err := a.router.DispatchStream(ctx, messages, func(chunk *llm.StreamChunk) {
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				sb.WriteString(choice.Delta.Content)
				fn(choice.Delta.Content)
			}
		}
	})
	if err != nil {
		return "", err
	}

	reply := sb.String()
	if _, err := a.store.Append("assistant", reply); err != nil {
		return reply, fmt.Errorf("record reply: %w", err)
	}
	return reply, nil
}

// logUsage reports token usage. Ollama and some gateways return zero
// usage; those get a local tiktoken estimate instead.
func (a *Assistant) logUsage(resp *llm.ChatResponse, messages []llm.Message, reply string) {
	if resp.Usage.TotalTokens > 0 {
		log.Printf("[OK] %s responded (%d tokens)", resp.Provider, resp.Usage.TotalTokens)
		return
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return
	}
	prompt := 0
	for _, m := range messages {
		prompt += len(enc.Encode(m.Content, nil, nil))
	}
	completion := len(enc.Encode(reply, nil, nil))
	log.Printf("[OK] %s responded (~%d tokens, estimated)", resp.Provider, prompt+completion)
}

// Respond satisfies the channel Responder interface.
func (a *Assistant) Respond(ctx context.Context, text string) (string, error) {
	return a.Handle(ctx, text)
}
