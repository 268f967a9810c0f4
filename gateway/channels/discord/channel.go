// Package discord provides the Discord bot channel implementation.
// Incoming messages arrive over the Gateway websocket; replies go out
// over the REST API.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gliderlab/clawbee/gateway/channels/types"
)

const (
	defaultAPIBase     = "https://discord.com/api/v10"
	defaultGatewayURL  = "wss://gateway.discord.gg/?v=10&encoding=json"
	intentGuildMessage = 1 << 9  // GUILD_MESSAGES
	intentMsgContent   = 1 << 15 // MESSAGE_CONTENT
	intentDirectMsg    = 1 << 12 // DIRECT_MESSAGES

	opDispatch  = 0
	opHeartbeat = 1
	opIdentify  = 2
	opHello     = 10
	opHeartACK  = 11
)

// Channel implements types.ChannelLoader for Discord.
type Channel struct {
	token      string
	apiBase    string
	gatewayURL string
	client     *http.Client
	responder  types.Responder

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}
	seq     *int64
	botID   string
}

// New creates a Discord channel.
func New(token string, responder types.Responder) *Channel {
	apiBase := os.Getenv("DISCORD_API_BASE")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	gatewayURL := os.Getenv("DISCORD_GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}
	return &Channel{
		token:      token,
		apiBase:    apiBase,
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		responder:  responder,
		stopCh:     make(chan struct{}),
	}
}

func (c *Channel) ChannelInfo() types.ChannelInfo {
	return types.ChannelInfo{
		Name:         "Discord",
		Type:         types.ChannelDiscord,
		Version:      "1.0.0",
		Description:  "Discord Gateway + REST API integration",
		Capabilities: []string{"gateway", "rest"},
	}
}

func (c *Channel) Initialize(config map[string]interface{}) error { return nil }

func (c *Channel) Start() error {
	if c.running {
		return nil
	}
	log.Printf("[START] Starting Discord channel...")
	c.running = true
	go c.gatewayLoop()
	return nil
}

func (c *Channel) Stop() error {
	if !c.running {
		return nil
	}
	close(c.stopCh)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	c.running = false
	c.stopCh = make(chan struct{})
	log.Printf("[OK] Discord channel stopped")
	return nil
}

func (c *Channel) SendMessage(req *types.SendMessageRequest) (*types.SendMessageResponse, error) {
	c.sendTyping(req.ChatID)

	text := req.Text
	if len(text) > 2000 {
		text = text[:2000]
	}

	payload, _ := json.Marshal(map[string]interface{}{"content": text})
	url := fmt.Sprintf("%s/channels/%s/messages", c.apiBase, req.ChatID)

	httpReq, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(string(payload)))
	httpReq.Header.Set("Authorization", "Bot "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &types.SendMessageResponse{OK: false, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	var created struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&created)

	return &types.SendMessageResponse{
		OK:        resp.StatusCode < 300,
		MessageID: created.ID,
		ChatID:    req.ChatID,
		Timestamp: time.Now().Unix(),
	}, nil
}

func (c *Channel) sendTyping(channelID string) {
	url := fmt.Sprintf("%s/channels/%s/typing", c.apiBase, channelID)
	httpReq, _ := http.NewRequest(http.MethodPost, url, nil)
	httpReq.Header.Set("Authorization", "Bot "+c.token)
	c.client.Do(httpReq)
}

func (c *Channel) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	types.LimitBody(w, r)
	io.Copy(io.Discard, r.Body)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"ok": true}`)
}

func (c *Channel) HealthCheck() error {
	httpReq, _ := http.NewRequest(http.MethodGet, c.apiBase+"/users/@me", nil)
	httpReq.Header.Set("Authorization", "Bot "+c.token)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("API connection failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return nil
}

// Gateway protocol

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type messageCreate struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
}

// gatewayLoop keeps the websocket session alive, reconnecting with
// backoff until Stop is called.
func (c *Channel) gatewayLoop() {
	backoff := time.Second
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if err := c.runSession(); err != nil {
			log.Printf("[WARN] Discord gateway session ended: %v", err)
		}

		select {
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Channel) runSession() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("gateway dial failed: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	// First frame must be Hello (op 10)
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello op %d, got %d", opHello, hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		return fmt.Errorf("parse hello: %w", err)
	}

	if err := c.identify(conn); err != nil {
		return err
	}

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go c.heartbeat(conn, time.Duration(hd.HeartbeatInterval)*time.Millisecond, heartbeatDone)

	for {
		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			return fmt.Errorf("gateway read: %w", err)
		}
		if payload.S != nil {
			c.mu.Lock()
			c.seq = payload.S
			c.mu.Unlock()
		}

		switch payload.Op {
		case opDispatch:
			c.handleDispatch(payload)
		case opHeartbeat:
			c.writeJSON(conn, gatewayPayload{Op: opHeartbeat, D: c.seqData()})
		case opHeartACK:
			// expected, nothing to do
		}
	}
}

func (c *Channel) identify(conn *websocket.Conn) error {
	identify := map[string]interface{}{
		"op": opIdentify,
		"d": map[string]interface{}{
			"token":   c.token,
			"intents": intentGuildMessage | intentMsgContent | intentDirectMsg,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "clawbee",
				"device":  "clawbee",
			},
		},
	}
	return c.writeJSON(conn, identify)
}

func (c *Channel) heartbeat(conn *websocket.Conn, interval time.Duration, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.writeJSON(conn, gatewayPayload{Op: opHeartbeat, D: c.seqData()}); err != nil {
				return
			}
		}
	}
}

func (c *Channel) seqData() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(fmt.Sprintf("%d", *c.seq))
}

func (c *Channel) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Channel) handleDispatch(payload gatewayPayload) {
	switch payload.T {
	case "READY":
		var ready struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		if err := json.Unmarshal(payload.D, &ready); err == nil {
			c.mu.Lock()
			c.botID = ready.User.ID
			c.mu.Unlock()
		}
		log.Printf("[OK] Discord gateway ready")
	case "MESSAGE_CREATE":
		var msg messageCreate
		if err := json.Unmarshal(payload.D, &msg); err != nil {
			log.Printf("[WARN] Discord: bad MESSAGE_CREATE: %v", err)
			return
		}
		go c.processMessage(msg)
	}
}

func (c *Channel) processMessage(msg messageCreate) {
	c.mu.Lock()
	botID := c.botID
	c.mu.Unlock()
	if msg.Author.Bot || msg.Author.ID == botID {
		return
	}
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return
	}

	log.Printf("[Discord] channel=discord from=%s chat=%s", msg.Author.Username, msg.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	response, err := c.responder.Respond(ctx, text)
	if err != nil {
		log.Printf("[WARN] Discord: responder error: %v", err)
		response = "Sorry, I encountered an error."
	}
	c.SendMessage(&types.SendMessageRequest{ChatID: msg.ChannelID, Text: response})
}

// NewFromEnv creates a Discord channel from environment configuration.
func NewFromEnv(responder types.Responder) (*Channel, error) {
	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN not set")
	}
	return New(token, responder), nil
}
