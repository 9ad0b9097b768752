package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestBot(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(Options{
		Token:      "123:TESTTOKEN",
		ChatID:     "-100999",
		APIBase:    server.URL,
		HTTPClient: server.Client(),
	})
}

func ok(w http.ResponseWriter, result interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "result": result})
}

func TestSendMessage(t *testing.T) {
	var gotText, gotParseMode, gotChatID string
	mux := http.NewServeMux()
	mux.HandleFunc("/bot123:TESTTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotText = r.PostFormValue("text")
		gotParseMode = r.PostFormValue("parse_mode")
		gotChatID = r.PostFormValue("chat_id")
		ok(w, map[string]interface{}{"message_id": 5})
	})

	bot := newTestBot(t, mux)

	message, err := bot.SendMessage(context.Background(), "<b>Reel posted!</b>")
	if err != nil {
		t.Fatalf("SendMessage() failed: %v", err)
	}
	if message.MessageID != 5 {
		t.Errorf("MessageID = %d, want 5", message.MessageID)
	}
	if gotText != "<b>Reel posted!</b>" {
		t.Errorf("text = %q", gotText)
	}
	if gotParseMode != "HTML" {
		t.Errorf("parse_mode = %q, want HTML", gotParseMode)
	}
	if gotChatID != "-100999" {
		t.Errorf("chat_id = %q, want -100999", gotChatID)
	}
}

func TestSendMessageAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot123:TESTTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok": false, "description": "Bad Request: chat not found", "error_code": 400,
		})
	})

	bot := newTestBot(t, mux)

	_, err := bot.SendMessage(context.Background(), "hello")
	if err == nil {
		t.Fatal("SendMessage() should surface API errors")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("Error %q should include API description", err)
	}
}

func TestSendVideoMultipart(t *testing.T) {
	var gotKeyboard string
	var hadFile bool
	mux := http.NewServeMux()
	mux.HandleFunc("/bot123:TESTTOKEN/sendVideo", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("sendVideo was not multipart: %v", err)
		}
		gotKeyboard = r.PostFormValue("reply_markup")
		_, _, err := r.FormFile("video")
		hadFile = err == nil
		ok(w, map[string]interface{}{"message_id": 7})
	})

	bot := newTestBot(t, mux)

	videoPath := filepath.Join(t.TempDir(), "demo.mp4")
	if err := os.WriteFile(videoPath, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	keyboard := &InlineKeyboard{
		InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: "✅ Approve", CallbackData: "approve:1"},
			{Text: "❌ Reject", CallbackData: "reject:1"},
		}},
	}

	message, err := bot.SendVideo(context.Background(), videoPath, "Preview", keyboard)
	if err != nil {
		t.Fatalf("SendVideo() failed: %v", err)
	}
	if message.MessageID != 7 {
		t.Errorf("MessageID = %d, want 7", message.MessageID)
	}
	if !hadFile {
		t.Error("sendVideo request had no video file part")
	}
	if !strings.Contains(gotKeyboard, "approve:1") {
		t.Errorf("reply_markup = %q, should contain approve:1", gotKeyboard)
	}
}

func TestGetUpdatesOffset(t *testing.T) {
	var gotOffset string
	mux := http.NewServeMux()
	mux.HandleFunc("/bot123:TESTTOKEN/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotOffset = r.PostFormValue("offset")
		ok(w, []map[string]interface{}{
			{"update_id": 101, "callback_query": map[string]interface{}{
				"id": "cb1", "from": map[string]interface{}{"id": 42}, "data": "approve:1",
			}},
		})
	})

	bot := newTestBot(t, mux)

	updates, err := bot.GetUpdates(context.Background(), 100, 30*time.Second)
	if err != nil {
		t.Fatalf("GetUpdates() failed: %v", err)
	}
	if gotOffset != "100" {
		t.Errorf("offset = %q, want 100", gotOffset)
	}
	if len(updates) != 1 {
		t.Fatalf("len(updates) = %d, want 1", len(updates))
	}
	if updates[0].CallbackQuery == nil || updates[0].CallbackQuery.Data != "approve:1" {
		t.Errorf("CallbackQuery = %+v", updates[0].CallbackQuery)
	}
}

// memOffsets is an in-memory offsetStore for poller tests.
type memOffsets struct {
	mu     sync.Mutex
	offset int64
}

func (m *memOffsets) GetTelegramOffset(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset, nil
}

func (m *memOffsets) SetTelegramOffset(_ context.Context, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = offset
	return nil
}

func TestPollerDispatchesAdminOnly(t *testing.T) {
	var callsMu sync.Mutex
	sent := false
	mux := http.NewServeMux()
	mux.HandleFunc("/bot123:TESTTOKEN/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		callsMu.Lock()
		first := !sent
		sent = true
		callsMu.Unlock()

		if first {
			ok(w, []map[string]interface{}{
				{"update_id": 1, "callback_query": map[string]interface{}{
					"id": "cb-admin", "from": map[string]interface{}{"id": int64(42)}, "data": "approve:9",
				}},
				{"update_id": 2, "callback_query": map[string]interface{}{
					"id": "cb-stranger", "from": map[string]interface{}{"id": int64(666)}, "data": "approve:9",
				}},
			})
			return
		}
		// Subsequent polls return nothing
		ok(w, []map[string]interface{}{})
	})
	mux.HandleFunc("/bot123:TESTTOKEN/answerCallbackQuery", func(w http.ResponseWriter, r *http.Request) {
		ok(w, true)
	})

	bot := newTestBot(t, mux)
	store := &memOffsets{}

	handled := make(chan string, 10)
	poller := NewPoller(bot, store, 42, func(_ context.Context, query *CallbackQuery) {
		handled <- query.Data + ":" + query.ID
	})

	poller.Start(context.Background())
	defer poller.Stop()

	select {
	case got := <-handled:
		if got != "approve:9:cb-admin" {
			t.Errorf("Handled %q, want admin callback", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Admin callback was never dispatched")
	}

	// The stranger's callback must not reach the handler
	select {
	case got := <-handled:
		t.Errorf("Unexpected second dispatch: %q", got)
	case <-time.After(200 * time.Millisecond):
	}

	// Offset must advance past both updates
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if offset, _ := store.GetTelegramOffset(context.Background()); offset == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	offset, _ := store.GetTelegramOffset(context.Background())
	t.Errorf("Persisted offset = %d, want 3", offset)
}
