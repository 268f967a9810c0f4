// Package types - Shared types and interfaces for channels
// This package is imported by both the channel registry and individual channel packages
package types

import (
	"context"
	"net/http"
)

// ChannelType represents the type of communication channel
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelSlack    ChannelType = "slack"
	ChannelDiscord  ChannelType = "discord"
)

const MaxWebhookBodyBytes int64 = 1 << 20

func LimitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxWebhookBodyBytes)
}

// ChannelInfo contains metadata about a channel
type ChannelInfo struct {
	Name         string                 `json:"name"`
	Type         ChannelType            `json:"type"`
	Version      string                 `json:"version"`
	Description  string                 `json:"description"`
	Capabilities []string               `json:"capabilities,omitempty"`
	Config       map[string]interface{} `json:"config,omitempty"`
}

// ChannelLoader defines the interface channel implementations satisfy
type ChannelLoader interface {
	ChannelInfo() ChannelInfo
	Initialize(config map[string]interface{}) error
	Start() error
	Stop() error
	SendMessage(req *SendMessageRequest) (*SendMessageResponse, error)
	HandleWebhook(w http.ResponseWriter, r *http.Request)
	HealthCheck() error
}

// Responder produces a reply for an incoming message. The assistant
// satisfies this; tests substitute a canned implementation.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// SendMessageRequest represents a message to send
type SendMessageRequest struct {
	ChatID   string `json:"chatId"`
	Text     string `json:"text"`
	ThreadID string `json:"threadId,omitempty"`
}

// SendMessageResponse represents the response from sending a message
type SendMessageResponse struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Timestamp int64  `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// ChannelMessage represents an incoming channel message. ChatID is a
// string because Discord and Slack use opaque identifiers; Telegram's
// numeric ids are stringified.
type ChannelMessage struct {
	ID        string      `json:"id"`
	Channel   ChannelType `json:"channel"`
	ChatID    string      `json:"chatId"`
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	Text      string      `json:"text"`
	Timestamp int64       `json:"timestamp"`
	ThreadID  string      `json:"threadId,omitempty"`
}
