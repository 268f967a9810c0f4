package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gliderlab/clawbee/gateway/channels/types"
)

type stubResponder struct {
	reply string
	seen  chan string
}

func (s *stubResponder) Respond(ctx context.Context, text string) (string, error) {
	if s.seen != nil {
		s.seen <- text
	}
	return s.reply, nil
}

func newBridge(t *testing.T) (*httptest.Server, chan map[string]string) {
	t.Helper()
	sent := make(chan map[string]string, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/send":
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			sent <- payload
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "messageId": "wamid.1"})
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, sent
}

func TestSendMessage(t *testing.T) {
	bridge, sent := newBridge(t)
	c := New("session-1", bridge.URL, &stubResponder{})

	resp, err := c.SendMessage(&types.SendMessageRequest{ChatID: "123@c.us", Text: "hi"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !resp.OK {
		t.Errorf("Expected OK, got error %q", resp.Error)
	}
	if resp.MessageID != "wamid.1" {
		t.Errorf("Expected message id 'wamid.1', got %q", resp.MessageID)
	}

	payload := <-sent
	if payload["session"] != "session-1" {
		t.Errorf("Expected session 'session-1', got %q", payload["session"])
	}
	if payload["chatId"] != "123@c.us" {
		t.Errorf("Expected chatId '123@c.us', got %q", payload["chatId"])
	}
}

func TestWebhookRoutesToResponder(t *testing.T) {
	bridge, sent := newBridge(t)
	responder := &stubResponder{reply: "hello!", seen: make(chan string, 1)}
	c := New("session-1", bridge.URL, responder)

	body := `{"chatId": "123@c.us", "from": "123", "text": "hi bee"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	w := httptest.NewRecorder()
	c.HandleWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	select {
	case text := <-responder.seen:
		if text != "hi bee" {
			t.Errorf("Expected responder to see 'hi bee', got %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Responder was never called")
	}

	select {
	case payload := <-sent:
		if payload["text"] != "hello!" {
			t.Errorf("Expected reply 'hello!', got %q", payload["text"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No reply was sent to the bridge")
	}
}

func TestWebhookIgnoresEmptyText(t *testing.T) {
	bridge, sent := newBridge(t)
	c := New("session-1", bridge.URL, &stubResponder{reply: "nope"})

	body := `{"chatId": "123@c.us", "text": "   "}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	w := httptest.NewRecorder()
	c.HandleWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	select {
	case payload := <-sent:
		t.Errorf("Expected no reply for empty message, got %v", payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHealthCheck(t *testing.T) {
	bridge, _ := newBridge(t)
	c := New("session-1", bridge.URL, &stubResponder{})
	if err := c.HealthCheck(); err != nil {
		t.Errorf("Expected healthy bridge, got %v", err)
	}

	down := New("session-1", "http://127.0.0.1:1", &stubResponder{})
	if err := down.HealthCheck(); err == nil {
		t.Error("Expected error for unreachable bridge")
	}
}

func TestDefaultBridgeURL(t *testing.T) {
	c := New("s", "", &stubResponder{})
	if c.bridgeURL != "http://localhost:3000" {
		t.Errorf("Expected default bridge URL, got %q", c.bridgeURL)
	}
}
