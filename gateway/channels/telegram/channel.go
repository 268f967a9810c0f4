// Package telegram provides the Telegram bot channel implementation
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gliderlab/clawbee/gateway/channels/types"
	"github.com/gliderlab/clawbee/pkg/kv"
)

const (
	offsetKey       = "telegram:offset"
	greetedKeyPfx   = "telegram:greeted:"
	maxMessageBytes = 4096
)

// Bot implements types.ChannelLoader over the Telegram Bot API.
// It runs in long polling mode by default; webhook mode is available
// for deployments with a public endpoint.
type Bot struct {
	token     string
	baseURL   string
	client    *http.Client
	responder types.Responder
	state     *kv.KV

	mode         string // "long_polling" or "webhook"
	pollInterval time.Duration

	running bool
	stopCh  chan struct{}

	// Bounded worker pool for update processing
	workerCnt int
}

// New creates a Telegram bot. The kv store persists the poll offset and
// greeted-user flags across restarts; pass nil to keep them in memory
// only (state falls back to an in-process store).
func New(token string, responder types.Responder, state *kv.KV) *Bot {
	mode := os.Getenv("TELEGRAM_MODE")
	if mode == "" {
		mode = "long_polling"
	}
	base := os.Getenv("TELEGRAM_API_BASE")
	if base == "" {
		base = "https://api.telegram.org"
	}
	if state == nil {
		state, _ = kv.OpenMemory()
	}

	return &Bot{
		token:        token,
		baseURL:      fmt.Sprintf("%s/bot%s", base, token),
		client:       &http.Client{Timeout: 35 * time.Second},
		responder:    responder,
		state:        state,
		mode:         mode,
		pollInterval: 1 * time.Second,
		workerCnt:    8,
	}
}

func (b *Bot) ChannelInfo() types.ChannelInfo {
	return types.ChannelInfo{
		Name:        "Telegram",
		Type:        types.ChannelTelegram,
		Version:     "1.0.0",
		Description: fmt.Sprintf("Telegram Bot API integration (%s mode)", b.mode),
	}
}

func (b *Bot) Initialize(config map[string]interface{}) error {
	if mode, ok := config["mode"].(string); ok && mode != "" {
		b.mode = mode
	}
	return nil
}

func (b *Bot) Start() error {
	if b.running {
		return nil
	}
	log.Printf("[START] Starting Telegram bot (mode: %s)...", b.mode)
	b.running = true

	if b.mode == "long_polling" {
		// getUpdates refuses to work while a webhook is registered
		b.deleteWebhook()
		// Fresh channels per start/stop cycle; the polling goroutine only
		// ever sees the pair it was launched with.
		b.stopCh = make(chan struct{})
		go b.startLongPolling(b.stopCh, make(chan Update, 100))
	}
	return nil
}

func (b *Bot) Stop() error {
	if !b.running {
		return nil
	}
	if b.mode == "long_polling" {
		close(b.stopCh)
	}
	b.running = false
	log.Printf("[OK] Telegram bot stopped")
	return nil
}

func (b *Bot) SendMessage(req *types.SendMessageRequest) (*types.SendMessageResponse, error) {
	text := req.Text
	if len(text) > maxMessageBytes {
		text = text[:maxMessageBytes]
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"chat_id":    req.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	resp, err := b.client.Post(b.baseURL+"/sendMessage", "application/json", strings.NewReader(string(payload)))
	if err != nil {
		return &types.SendMessageResponse{OK: false, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	var sendResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description,omitempty"`
		Result      struct {
			MessageID int `json:"message_id"`
			Chat      struct {
				ID int64 `json:"id"`
			} `json:"chat"`
			Date int64 `json:"date"`
		} `json:"result"`
	}
	json.NewDecoder(resp.Body).Decode(&sendResp)

	if !sendResp.OK {
		return &types.SendMessageResponse{OK: false, Error: sendResp.Description}, nil
	}
	return &types.SendMessageResponse{
		OK:        true,
		MessageID: strconv.Itoa(sendResp.Result.MessageID),
		ChatID:    strconv.FormatInt(sendResp.Result.Chat.ID, 10),
		Timestamp: sendResp.Result.Date,
	}, nil
}

func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	types.LimitBody(w, r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		log.Printf("[WARN] Telegram webhook: bad JSON: %v", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if update.Message.Text != "" {
		go b.processMessage(update.Message)
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"ok": true}`)
}

func (b *Bot) HealthCheck() error {
	resp, err := b.client.Get(b.baseURL + "/getMe")
	if err != nil {
		return fmt.Errorf("API connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return nil
}

func (b *Bot) processMessage(msg IncomingMessage) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	log.Printf("[Telegram] channel=telegram from=@%s chat=%d", msg.From.Username, chatID)

	if strings.HasPrefix(text, "/start") {
		b.state.Set(greetedKeyPfx+strconv.FormatInt(msg.From.ID, 10), "1")
		b.reply(chatID, fmt.Sprintf("Hello %s! I'm ClawBee. Send me a message!", msg.From.FirstName))
		return
	}
	if strings.HasPrefix(text, "/help") {
		b.reply(chatID, "Commands:\n/start - Start bot\n/help - Help")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	response, err := b.responder.Respond(ctx, text)
	if err != nil {
		log.Printf("[WARN] Telegram: responder error: %v", err)
		b.reply(chatID, "Sorry, I encountered an error.")
		return
	}
	b.reply(chatID, response)
}

func (b *Bot) reply(chatID int64, text string) {
	b.sendChatAction(chatID, "typing")
	if len(text) > maxMessageBytes {
		text = text[:maxMessageBytes]
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	b.client.Post(b.baseURL+"/sendMessage", "application/json", strings.NewReader(string(payload)))
}

func (b *Bot) sendChatAction(chatID int64, action string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"action":  action,
	})
	b.client.Post(b.baseURL+"/sendChatAction", "application/json", strings.NewReader(string(payload)))
}

// Telegram wire types
type Update struct {
	UpdateID int64           `json:"update_id"`
	Message  IncomingMessage `json:"message"`
}

type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	From      User   `json:"from"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Long polling

func (b *Bot) deleteWebhook() {
	resp, err := b.client.Post(b.baseURL+"/deleteWebhook", "application/json", nil)
	if err != nil {
		log.Printf("[Telegram] channel=telegram action=deleteWebhook error=%v", err)
		return
	}
	resp.Body.Close()
}

func (b *Bot) startLongPolling(stopCh <-chan struct{}, msgCh chan Update) {
	log.Printf("[RELOAD] Starting Long Polling loop with %d workers...", b.workerCnt)

	var wg sync.WaitGroup
	wg.Add(b.workerCnt)
	for i := 0; i < b.workerCnt; i++ {
		go b.messageWorker(&wg, msgCh)
	}

	for {
		select {
		case <-stopCh:
			close(msgCh)
			wg.Wait()
			log.Printf("[OK] All Telegram workers stopped")
			return
		default:
			b.pollUpdates(msgCh)
			time.Sleep(b.pollInterval)
		}
	}
}

func (b *Bot) messageWorker(wg *sync.WaitGroup, msgCh <-chan Update) {
	defer wg.Done()
	for update := range msgCh {
		if update.Message.Text != "" {
			b.processMessage(update.Message)
		}
	}
}

func (b *Bot) pollUpdates(msgCh chan<- Update) {
	offset, err := b.state.GetInt(offsetKey)
	if err != nil {
		log.Printf("[WARN] Telegram: read offset: %v", err)
	}

	url := fmt.Sprintf("%s/getUpdates?timeout=30&offset=%d", b.baseURL, offset)
	resp, err := b.client.Get(url)
	if err != nil {
		log.Printf("[Telegram] channel=telegram action=pollUpdates error=%v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] channel=telegram action=pollUpdates http_status=%d", resp.StatusCode)
		return
	}

	var result struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("[Telegram] channel=telegram action=pollUpdates error=decode_failed details=%v", err)
		return
	}
	if !result.OK || len(result.Result) == 0 {
		return
	}

	for _, update := range result.Result {
		if update.UpdateID >= offset {
			offset = update.UpdateID + 1
			b.state.SetInt(offsetKey, offset)
		}

		if update.Message.Text != "" {
			select {
			case msgCh <- update:
			default:
				// Queue full: drop with a trace rather than block the poll loop
				log.Printf("[Telegram] channel=telegram action=pollUpdates status=dropped update_id=%d reason=queue_full", update.UpdateID)
			}
		}
	}
}

// NewFromEnv creates a Telegram bot from environment configuration.
func NewFromEnv(responder types.Responder, state *kv.KV) (*Bot, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	return New(token, responder, state), nil
}
