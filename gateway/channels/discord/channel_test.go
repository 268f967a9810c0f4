package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
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

func fakeAPI(t *testing.T) (*httptest.Server, chan map[string]any) {
	t.Helper()
	sent := make(chan map[string]any, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/messages") {
			if got := r.Header.Get("Authorization"); got != "Bot test-token" {
				t.Errorf("Expected bot auth header, got %q", got)
			}
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			sent <- payload
			json.NewEncoder(w).Encode(map[string]any{"id": "111222333"})
			return
		}
		// typing, users/@me
		w.Write([]byte(`{"id": "999"}`))
	}))
	t.Cleanup(server.Close)
	return server, sent
}

func TestChannelInfo(t *testing.T) {
	c := New("test-token", &stubResponder{})
	info := c.ChannelInfo()
	if info.Type != types.ChannelDiscord {
		t.Errorf("Expected discord type, got %s", info.Type)
	}
}

func TestSendMessage(t *testing.T) {
	server, sent := fakeAPI(t)
	t.Setenv("DISCORD_API_BASE", server.URL)

	c := New("test-token", &stubResponder{})
	resp, err := c.SendMessage(&types.SendMessageRequest{ChatID: "chan-1", Text: "hi"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !resp.OK {
		t.Errorf("Expected OK response, got error %q", resp.Error)
	}
	if resp.MessageID != "111222333" {
		t.Errorf("Expected message id '111222333', got %q", resp.MessageID)
	}

	payload := <-sent
	if payload["content"] != "hi" {
		t.Errorf("Expected content 'hi', got %v", payload["content"])
	}
}

func TestSendMessageTruncates(t *testing.T) {
	server, sent := fakeAPI(t)
	t.Setenv("DISCORD_API_BASE", server.URL)

	c := New("test-token", &stubResponder{})
	long := strings.Repeat("x", 3000)
	if _, err := c.SendMessage(&types.SendMessageRequest{ChatID: "chan-1", Text: long}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	payload := <-sent
	if got := len(payload["content"].(string)); got != 2000 {
		t.Errorf("Expected content truncated to 2000, got %d", got)
	}
}

func TestProcessMessageSkipsBots(t *testing.T) {
	server, sent := fakeAPI(t)
	t.Setenv("DISCORD_API_BASE", server.URL)

	responder := &stubResponder{reply: "hello!", seen: make(chan string, 1)}
	c := New("test-token", responder)
	c.botID = "self"

	var msg messageCreate
	msg.ChannelID = "chan-1"
	msg.Content = "hi"
	msg.Author.ID = "other-bot"
	msg.Author.Bot = true
	c.processMessage(msg)

	msg.Author.Bot = false
	msg.Author.ID = "self"
	c.processMessage(msg)

	select {
	case text := <-responder.seen:
		t.Errorf("Responder should not run for bot or self messages, saw %q", text)
	default:
	}
	select {
	case payload := <-sent:
		t.Errorf("Expected no reply, got %v", payload)
	default:
	}
}

func TestProcessMessageReplies(t *testing.T) {
	server, sent := fakeAPI(t)
	t.Setenv("DISCORD_API_BASE", server.URL)

	responder := &stubResponder{reply: "hello!", seen: make(chan string, 1)}
	c := New("test-token", responder)
	c.botID = "self"

	var msg messageCreate
	msg.ChannelID = "chan-1"
	msg.Content = "hi bee"
	msg.Author.ID = "user-1"
	c.processMessage(msg)

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
		if payload["content"] != "hello!" {
			t.Errorf("Expected reply 'hello!', got %v", payload["content"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No reply was sent")
	}
}

func TestSeqData(t *testing.T) {
	c := New("test-token", &stubResponder{})
	if got := string(c.seqData()); got != "null" {
		t.Errorf("Expected null before any sequence, got %s", got)
	}
	seq := int64(42)
	c.seq = &seq
	if got := string(c.seqData()); got != "42" {
		t.Errorf("Expected 42, got %s", got)
	}
}

func TestHealthCheck(t *testing.T) {
	server, _ := fakeAPI(t)
	t.Setenv("DISCORD_API_BASE", server.URL)

	c := New("test-token", &stubResponder{})
	if err := c.HealthCheck(); err != nil {
		t.Errorf("Expected healthy API, got %v", err)
	}

	t.Setenv("DISCORD_API_BASE", "http://127.0.0.1:1")
	down := New("test-token", &stubResponder{})
	if err := down.HealthCheck(); err == nil {
		t.Error("Expected error for unreachable API")
	}
}

func TestBotIDUpdateDuringTraffic(t *testing.T) {
	server, _ := fakeAPI(t)
	t.Setenv("DISCORD_API_BASE", server.URL)

	responder := &stubResponder{reply: "hello!"}
	c := New("test-token", responder)

	// READY can land while messages are already being dispatched; the
	// self-check must read botID under the lock.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			c.mu.Lock()
			c.botID = "self"
			c.mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		var msg messageCreate
		msg.ChannelID = "chan-1"
		msg.Content = "hi"
		msg.Author.ID = "self"
		for i := 0; i < 50; i++ {
			c.processMessage(msg)
		}
	}()
	wg.Wait()
}
