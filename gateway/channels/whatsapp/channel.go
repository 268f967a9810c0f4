// Package whatsapp provides the WhatsApp channel implementation. It
// talks to an external bridge process (whatsapp-web.js or compatible)
// over HTTP: incoming messages arrive on the webhook, outgoing messages
// POST to the bridge's /send endpoint.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gliderlab/clawbee/gateway/channels/types"
)

// Channel implements types.ChannelLoader for WhatsApp.
type Channel struct {
	sessionID string
	bridgeURL string
	client    *http.Client
	responder types.Responder
	running   bool
}

// New creates a WhatsApp channel pointed at a bridge URL.
func New(sessionID, bridgeURL string, responder types.Responder) *Channel {
	if bridgeURL == "" {
		bridgeURL = "http://localhost:3000"
	}
	return &Channel{
		sessionID: sessionID,
		bridgeURL: strings.TrimRight(bridgeURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		responder: responder,
	}
}

func (c *Channel) ChannelInfo() types.ChannelInfo {
	return types.ChannelInfo{
		Name:        "WhatsApp",
		Type:        types.ChannelWhatsApp,
		Version:     "1.0.0",
		Description: "WhatsApp Web bridge integration",
	}
}

func (c *Channel) Initialize(config map[string]interface{}) error {
	if url, ok := config["bridge_url"].(string); ok && url != "" {
		c.bridgeURL = strings.TrimRight(url, "/")
	}
	return nil
}

func (c *Channel) Start() error {
	log.Printf("[START] Starting WhatsApp channel (bridge: %s)...", c.bridgeURL)
	c.running = true
	return nil
}

func (c *Channel) Stop() error {
	c.running = false
	log.Printf("[OK] WhatsApp channel stopped")
	return nil
}

func (c *Channel) SendMessage(req *types.SendMessageRequest) (*types.SendMessageResponse, error) {
	payload, _ := json.Marshal(map[string]string{
		"session": c.sessionID,
		"chatId":  req.ChatID,
		"text":    req.Text,
	})
	resp, err := c.client.Post(c.bridgeURL+"/send", "application/json", strings.NewReader(string(payload)))
	if err != nil {
		return &types.SendMessageResponse{OK: false, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	var bridgeResp struct {
		OK        bool   `json:"ok"`
		MessageID string `json:"messageId"`
		Error     string `json:"error,omitempty"`
	}
	json.NewDecoder(resp.Body).Decode(&bridgeResp)

	if !bridgeResp.OK {
		return &types.SendMessageResponse{OK: false, Error: bridgeResp.Error}, nil
	}
	return &types.SendMessageResponse{
		OK:        true,
		MessageID: bridgeResp.MessageID,
		ChatID:    req.ChatID,
		Timestamp: time.Now().Unix(),
	}, nil
}

// HandleWebhook receives messages forwarded by the bridge.
func (c *Channel) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	types.LimitBody(w, r)
	var incoming struct {
		ChatID string `json:"chatId"`
		From   string `json:"from"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		log.Printf("[WARN] WhatsApp webhook: bad JSON: %v", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(incoming.Text) != "" {
		go c.processMessage(incoming.ChatID, incoming.Text)
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"ok": true}`)
}

func (c *Channel) processMessage(chatID, text string) {
	log.Printf("[WhatsApp] channel=whatsapp chat=%s", chatID)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	response, err := c.responder.Respond(ctx, text)
	if err != nil {
		log.Printf("[WARN] WhatsApp: responder error: %v", err)
		response = "Sorry, I encountered an error."
	}
	c.SendMessage(&types.SendMessageRequest{ChatID: chatID, Text: response})
}

func (c *Channel) HealthCheck() error {
	resp, err := c.client.Get(c.bridgeURL + "/health")
	if err != nil {
		return fmt.Errorf("bridge connection failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	return nil
}

// NewFromEnv creates a WhatsApp channel from environment configuration.
func NewFromEnv(responder types.Responder) (*Channel, error) {
	id := os.Getenv("WHATSAPP_SESSION_ID")
	if id == "" {
		return nil, fmt.Errorf("WHATSAPP_SESSION_ID not set")
	}
	return New(id, os.Getenv("WHATSAPP_BRIDGE_URL"), responder), nil
}
