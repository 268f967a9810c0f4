// Package slack provides the Slack channel implementation using Socket
// Mode: the app opens a websocket via apps.connections.open, acks event
// envelopes, and replies through chat.postMessage.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/gliderlab/clawbee/gateway/channels/types"
)

// Channel implements types.ChannelLoader for Slack.
type Channel struct {
	botToken  string
	appToken  string
	apiBase   string
	client    *http.Client
	responder types.Responder

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a Slack channel. botToken (xoxb-) sends messages; appToken
// (xapp-) opens the Socket Mode connection.
func New(botToken, appToken string, responder types.Responder) *Channel {
	apiBase := os.Getenv("SLACK_API_BASE")
	if apiBase == "" {
		apiBase = "https://slack.com/api"
	}
	return &Channel{
		botToken:  botToken,
		appToken:  appToken,
		apiBase:   apiBase,
		client:    &http.Client{Timeout: 30 * time.Second},
		responder: responder,
	}
}

func (c *Channel) ChannelInfo() types.ChannelInfo {
	return types.ChannelInfo{
		Name:         "Slack",
		Type:         types.ChannelSlack,
		Version:      "1.0.0",
		Description:  "Slack Socket Mode integration",
		Capabilities: []string{"socket_mode"},
	}
}

func (c *Channel) Initialize(config map[string]interface{}) error { return nil }

func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	log.Printf("[START] Starting Slack channel...")
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	go c.socketLoop(ctx)
	return nil
}

func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.cancel()
	c.running = false
	log.Printf("[OK] Slack channel stopped")
	return nil
}

func (c *Channel) SendMessage(req *types.SendMessageRequest) (*types.SendMessageResponse, error) {
	text := req.Text
	if len(text) > 4000 {
		text = text[:4000]
	}

	body := map[string]interface{}{
		"channel": req.ChatID,
		"text":    text,
	}
	if req.ThreadID != "" {
		body["thread_ts"] = req.ThreadID
	}
	payload, _ := json.Marshal(body)

	httpReq, _ := http.NewRequest(http.MethodPost, c.apiBase+"/chat.postMessage", strings.NewReader(string(payload)))
	httpReq.Header.Set("Authorization", "Bearer "+c.botToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &types.SendMessageResponse{OK: false, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	var apiResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	json.NewDecoder(resp.Body).Decode(&apiResp)

	if !apiResp.OK {
		return &types.SendMessageResponse{OK: false, Error: apiResp.Error}, nil
	}
	return &types.SendMessageResponse{
		OK:        true,
		MessageID: apiResp.TS,
		ChatID:    req.ChatID,
		Timestamp: time.Now().Unix(),
	}, nil
}

func (c *Channel) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	// Socket Mode needs no inbound webhook; answer Slack's URL
	// verification challenge so switching modes stays possible.
	types.LimitBody(w, r)
	var challenge struct {
		Challenge string `json:"challenge"`
	}
	json.NewDecoder(r.Body).Decode(&challenge)
	w.Header().Set("Content-Type", "application/json")
	if challenge.Challenge != "" {
		fmt.Fprintf(w, `{"challenge": %q}`, challenge.Challenge)
		return
	}
	fmt.Fprint(w, `{"ok": true}`)
}

func (c *Channel) HealthCheck() error {
	httpReq, _ := http.NewRequest(http.MethodPost, c.apiBase+"/auth.test", nil)
	httpReq.Header.Set("Authorization", "Bearer "+c.botToken)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("API connection failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	json.NewDecoder(resp.Body).Decode(&apiResp)
	if !apiResp.OK {
		return fmt.Errorf("auth.test failed: %s", apiResp.Error)
	}
	return nil
}

// Socket Mode

type envelope struct {
	EnvelopeID string          `json:"envelope_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

type eventsPayload struct {
	Event struct {
		Type    string `json:"type"`
		User    string `json:"user"`
		BotID   string `json:"bot_id"`
		Text    string `json:"text"`
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	} `json:"event"`
}

func (c *Channel) socketLoop(ctx context.Context) {
	backoff := time.Second
	for {
		if err := c.runSession(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[WARN] Slack socket session ended: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// openConnection asks Slack for a fresh Socket Mode websocket URL.
func (c *Channel) openConnection(ctx context.Context) (string, error) {
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/apps.connections.open", nil)
	httpReq.Header.Set("Authorization", "Bearer "+c.appToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("apps.connections.open failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp struct {
		OK    bool   `json:"ok"`
		URL   string `json:"url"`
		Error string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", err
	}
	if !apiResp.OK || apiResp.URL == "" {
		return "", fmt.Errorf("apps.connections.open rejected: %s", apiResp.Error)
	}
	return apiResp.URL, nil
}

func (c *Channel) runSession(ctx context.Context) error {
	wsURL, err := c.openConnection(ctx)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("socket dial failed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return fmt.Errorf("socket read: %w", err)
		}

		switch env.Type {
		case "hello":
			log.Printf("[OK] Slack socket connected")
		case "disconnect":
			// Slack rotates connections; reconnect with a new URL
			return nil
		case "events_api":
			c.ack(ctx, conn, env.EnvelopeID)
			var ep eventsPayload
			if err := json.Unmarshal(env.Payload, &ep); err != nil {
				log.Printf("[WARN] Slack: bad event payload: %v", err)
				continue
			}
			go c.processEvent(ep)
		default:
			c.ack(ctx, conn, env.EnvelopeID)
		}
	}
}

// ack must be sent within a few seconds or Slack redelivers the event.
func (c *Channel) ack(ctx context.Context, conn *websocket.Conn, envelopeID string) {
	if envelopeID == "" {
		return
	}
	if err := wsjson.Write(ctx, conn, map[string]string{"envelope_id": envelopeID}); err != nil {
		log.Printf("[WARN] Slack: ack failed: %v", err)
	}
}

func (c *Channel) processEvent(ep eventsPayload) {
	ev := ep.Event
	if ev.Type != "message" || ev.BotID != "" || ev.User == "" {
		return
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	log.Printf("[Slack] channel=slack from=%s chat=%s", ev.User, ev.Channel)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	response, err := c.responder.Respond(ctx, text)
	if err != nil {
		log.Printf("[WARN] Slack: responder error: %v", err)
		response = "Sorry, I encountered an error."
	}
	c.SendMessage(&types.SendMessageRequest{ChatID: ev.Channel, Text: response})
}

// NewFromEnv creates a Slack channel from environment configuration.
func NewFromEnv(responder types.Responder) (*Channel, error) {
	botToken := os.Getenv("SLACK_BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("SLACK_BOT_TOKEN not set")
	}
	appToken := os.Getenv("SLACK_APP_TOKEN")
	if appToken == "" {
		return nil, fmt.Errorf("SLACK_APP_TOKEN not set")
	}
	return New(botToken, appToken, responder), nil
}
