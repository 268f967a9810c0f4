// Package channels - Channel adapter for communication platforms
package channels

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gliderlab/clawbee/gateway/channels/types"
)

// Alias types so callers rarely need the types package directly
type ChannelType = types.ChannelType
type ChannelInfo = types.ChannelInfo
type ChannelLoader = types.ChannelLoader
type SendMessageRequest = types.SendMessageRequest
type SendMessageResponse = types.SendMessageResponse
type ChannelMessage = types.ChannelMessage
type Responder = types.Responder

var (
	ChannelTelegram = types.ChannelTelegram
	ChannelWhatsApp = types.ChannelWhatsApp
	ChannelSlack    = types.ChannelSlack
	ChannelDiscord  = types.ChannelDiscord
)

// Adapter manages the registered channel implementations and routes
// incoming messages through the responder.
type Adapter struct {
	mu        sync.RWMutex
	channels  map[ChannelType]ChannelLoader
	responder Responder
}

// NewAdapter creates an adapter with no channels registered.
func NewAdapter(responder Responder) *Adapter {
	return &Adapter{
		channels:  make(map[ChannelType]ChannelLoader),
		responder: responder,
	}
}

// Register adds and initializes a channel.
func (a *Adapter) Register(channel ChannelLoader) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	info := channel.ChannelInfo()
	if _, exists := a.channels[info.Type]; exists {
		return fmt.Errorf("channel %s already registered", info.Type)
	}

	if err := channel.Initialize(info.Config); err != nil {
		return fmt.Errorf("failed to initialize channel %s: %w", info.Type, err)
	}

	a.channels[info.Type] = channel
	log.Printf("[OK] registered channel: %s v%s", info.Name, info.Version)
	return nil
}

// Unregister stops and removes a channel.
func (a *Adapter) Unregister(channelType ChannelType) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	channel, exists := a.channels[channelType]
	if !exists {
		return fmt.Errorf("channel %s not found", channelType)
	}
	if err := channel.Stop(); err != nil {
		log.Printf("[WARN] channel %s stop error: %v", channelType, err)
	}
	delete(a.channels, channelType)
	return nil
}

// StartAll starts every registered channel. Individual failures are
// logged, not fatal; one broken integration should not take the rest
// down.
func (a *Adapter) StartAll() error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for channelType, channel := range a.channels {
		if err := channel.Start(); err != nil {
			log.Printf("[WARN] failed to start channel %s: %v", channelType, err)
			continue
		}
		log.Printf("[START] started channel: %s", channelType)
	}
	return nil
}

// StopAll stops every registered channel and clears the registry.
func (a *Adapter) StopAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for channelType, channel := range a.channels {
		if err := channel.Stop(); err != nil {
			log.Printf("[WARN] failed to stop channel %s: %v", channelType, err)
		}
	}
	a.channels = make(map[ChannelType]ChannelLoader)
	return nil
}

// SendMessage sends through a specific channel.
func (a *Adapter) SendMessage(channelType ChannelType, req *SendMessageRequest) (*SendMessageResponse, error) {
	a.mu.RLock()
	channel, exists := a.channels[channelType]
	a.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("channel %s not found", channelType)
	}
	return channel.SendMessage(req)
}

// HandleWebhook dispatches an inbound webhook to the right channel.
func (a *Adapter) HandleWebhook(channelType ChannelType, w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	channel, exists := a.channels[channelType]
	a.mu.RUnlock()

	if !exists {
		http.Error(w, "channel not found", http.StatusNotFound)
		return
	}
	channel.HandleWebhook(w, r)
}

// ProcessMessage runs an incoming message through the responder and
// sends the reply back on the originating channel.
func (a *Adapter) ProcessMessage(ctx context.Context, msg *ChannelMessage) (*Result, error) {
	if a.responder == nil {
		return nil, fmt.Errorf("responder not configured")
	}

	response, err := a.responder.Respond(ctx, msg.Text)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), Timestamp: time.Now().Unix()}, err
	}

	sendReq := &SendMessageRequest{ChatID: msg.ChatID, Text: response}
	if msg.ThreadID != "" {
		sendReq.ThreadID = msg.ThreadID
	}

	resp, err := a.SendMessage(msg.Channel, sendReq)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), Timestamp: time.Now().Unix()}, err
	}
	return &Result{Success: true, Data: resp, Timestamp: time.Now().Unix()}, nil
}

// List returns currently registered channel types.
func (a *Adapter) List() []ChannelType {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]ChannelType, 0, len(a.channels))
	for t := range a.channels {
		out = append(out, t)
	}
	return out
}

// Has reports whether a channel type is registered.
func (a *Adapter) Has(channelType ChannelType) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, exists := a.channels[channelType]
	return exists
}

// Info returns a registered channel's metadata.
func (a *Adapter) Info(channelType ChannelType) (*ChannelInfo, error) {
	a.mu.RLock()
	channel, exists := a.channels[channelType]
	a.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("channel %s not found", channelType)
	}
	info := channel.ChannelInfo()
	return &info, nil
}

// HealthCheck runs each channel's health check and collects failures.
func (a *Adapter) HealthCheck() map[ChannelType]error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	results := make(map[ChannelType]error)
	for channelType, channel := range a.channels {
		if err := channel.HealthCheck(); err != nil {
			results[channelType] = err
		}
	}
	return results
}

// Result represents a channel operation outcome.
type Result struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}
