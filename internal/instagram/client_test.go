package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(Options{
		Username:    "poster",
		Password:    "pw",
		SessionFile: filepath.Join(t.TempDir(), "poster_session.json"),
		BaseURL:     server.URL,
		HTTPClient:  server.Client(),
	})
	client.sleep = noSleep
	return client, server
}

func loginOKHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "ok",
			"session_id":     "sess-123",
			"csrf_token":     "csrf-456",
			"logged_in_user": map[string]interface{}{"pk": 42, "username": "poster"},
		})
	})
	mux.HandleFunc("/accounts/current_user/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}

func TestLoginWithCredentials(t *testing.T) {
	client, _ := newTestClient(t, loginOKHandler())

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if !client.LoggedIn() {
		t.Error("LoggedIn() = false after successful login")
	}

	// Session file must have been written
	data, err := os.ReadFile(client.sessionFile)
	if err != nil {
		t.Fatalf("Session file not written: %v", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		t.Fatalf("Session file not valid JSON: %v", err)
	}
	if session.SessionID != "sess-123" {
		t.Errorf("SessionID = %q, want sess-123", session.SessionID)
	}
	if session.UserID != "42" {
		t.Errorf("UserID = %q, want 42", session.UserID)
	}
}

func TestLoginPrefersSavedSession(t *testing.T) {
	loginCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		loginCalls++
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/accounts/current_user/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	client, _ := newTestClient(t, mux)

	saved := &Session{Username: "poster", UserID: "42", SessionID: "old", CSRFToken: "tok"}
	if err := client.saveSession(context.Background(), saved); err != nil {
		t.Fatalf("saveSession() failed: %v", err)
	}

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if loginCalls != 0 {
		t.Errorf("Credential login called %d times, want 0 (session should be reused)", loginCalls)
	}
}

func TestLoginRetriesThenFails(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		json.NewEncoder(w).Encode(map[string]string{"status": "fail", "message": "bad password"})
	})

	client, _ := newTestClient(t, mux)

	err := client.Login(context.Background())
	if err == nil {
		t.Fatal("Login() should fail")
	}
	if attempts != loginAttempts {
		t.Errorf("Login attempts = %d, want %d", attempts, loginAttempts)
	}
}

func TestLoginChallengeAborts(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		json.NewEncoder(w).Encode(map[string]string{
			"status":     "fail",
			"error_type": "checkpoint_challenge_required",
			"message":    "challenge_required",
		})
	})

	client, _ := newTestClient(t, mux)

	err := client.Login(context.Background())
	if !errors.Is(err, ErrChallengeRequired) {
		t.Fatalf("Login() error = %v, want ErrChallengeRequired", err)
	}
	if attempts != 1 {
		t.Errorf("Login attempts = %d, want 1 (challenge must not retry)", attempts)
	}
}

func TestRecentReelsFiltersAndLimits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/source/usernameinfo/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user": map[string]interface{}{"pk": 777},
		})
	})
	mux.HandleFunc("/feed/user/777/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"pk": 1, "code": "A", "media_type": 2, "user": map[string]string{"username": "source"}},
				{"pk": 2, "code": "B", "media_type": 1}, // photo, filtered out
				{"pk": 3, "code": "C", "media_type": 2},
				{"pk": 4, "code": "D", "media_type": 2},
			},
		})
	})

	client, _ := newTestClient(t, mux)

	reels, err := client.RecentReels(context.Background(), "source", 2)
	if err != nil {
		t.Fatalf("RecentReels() failed: %v", err)
	}
	if len(reels) != 2 {
		t.Fatalf("len(reels) = %d, want 2", len(reels))
	}
	for _, reel := range reels {
		if reel.MediaType != mediaTypeClip {
			t.Errorf("Non-clip media %s in results", reel.Code)
		}
		if reel.Username != "source" {
			t.Errorf("Username = %q, want source", reel.Username)
		}
	}
}

func TestRecentReelsUnknownUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/ghost/usernameinfo/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"fail"}`, http.StatusNotFound)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.RecentReels(context.Background(), "ghost", 5)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("RecentReels() error = %v, want ErrUserNotFound", err)
	}
}

func TestUploadClip(t *testing.T) {
	var uploadedVideo, configured bool
	mux := http.NewServeMux()
	mux.HandleFunc("/rupload_igvideo/", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Upload was not multipart: %v", err)
		}
		uploadedVideo = true
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/media/configure_to_clips/", func(w http.ResponseWriter, r *http.Request) {
		configured = true
		if err := r.ParseForm(); err == nil {
			if caption := r.PostFormValue("caption"); caption != "Credits to @source 🔥\nFollow for more!" {
				t.Errorf("Caption = %q", caption)
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"media":  map[string]interface{}{"pk": 999},
		})
	})

	client, _ := newTestClient(t, mux)

	videoPath := filepath.Join(t.TempDir(), "source_1.mp4")
	if err := os.WriteFile(videoPath, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	pk, err := client.UploadClip(context.Background(), videoPath, "Credits to @source 🔥\nFollow for more!", "")
	if err != nil {
		t.Fatalf("UploadClip() failed: %v", err)
	}
	if pk != "999" {
		t.Errorf("pk = %q, want 999", pk)
	}
	if !uploadedVideo || !configured {
		t.Errorf("uploadedVideo=%v configured=%v, want both true", uploadedVideo, configured)
	}
}

func TestComment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/media/12345/comment/", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err == nil {
			if text := r.PostFormValue("comment_text"); text == "" {
				t.Error("comment_text missing")
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	client, _ := newTestClient(t, mux)

	if err := client.Comment(context.Background(), "12345", "Credits to @source 🔥"); err != nil {
		t.Fatalf("Comment() failed: %v", err)
	}
}

type memMetadata struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memMetadata) GetMetadata(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memMetadata) SetMetadata(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

func TestInvalidSessionClearsMirror(t *testing.T) {
	verifyCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/current_user/", func(w http.ResponseWriter, r *http.Request) {
		verifyCalls++
		if verifyCalls == 1 {
			// The saved session is dead
			http.Error(w, `{"status":"fail"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "ok",
			"session_id":     "fresh-session",
			"csrf_token":     "csrf",
			"logged_in_user": map[string]interface{}{"pk": 42, "username": "poster"},
		})
	})

	client, _ := newTestClient(t, mux)
	store := &memMetadata{}
	client.store = store

	stale := &Session{Username: "poster", UserID: "42", SessionID: "stale", CSRFToken: "tok"}
	if err := client.saveSession(context.Background(), stale); err != nil {
		t.Fatalf("saveSession() failed: %v", err)
	}

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	mirrored, _ := store.GetMetadata(context.Background(), sessionMetadataKey)
	if mirrored == "" {
		t.Fatal("Mirror should hold the fresh session after re-login")
	}
	var mirroredSession Session
	if err := json.Unmarshal([]byte(mirrored), &mirroredSession); err != nil {
		t.Fatalf("Mirror not valid JSON: %v", err)
	}
	if mirroredSession.SessionID != "fresh-session" {
		t.Errorf("Mirrored SessionID = %q, the stale session must not survive", mirroredSession.SessionID)
	}
}

func TestClearSessionEmptiesMirror(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	store := &memMetadata{}
	client.store = store

	stale := &Session{Username: "poster", SessionID: "stale"}
	if err := client.saveSession(context.Background(), stale); err != nil {
		t.Fatalf("saveSession() failed: %v", err)
	}

	client.clearSession(context.Background())

	if _, err := os.Stat(client.sessionFile); !os.IsNotExist(err) {
		t.Error("Session file should be removed")
	}
	if mirrored, _ := store.GetMetadata(context.Background(), sessionMetadataKey); mirrored != "" {
		t.Errorf("Mirror = %q, want empty after clearSession", mirrored)
	}
	if _, err := client.loadSession(context.Background()); err == nil {
		t.Error("loadSession() should fail once file and mirror are cleared")
	}
}

func TestSessionRejectedForWrongUser(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())

	wrong := &Session{Username: "someone_else", SessionID: "x"}
	if err := client.saveSession(context.Background(), wrong); err != nil {
		t.Fatalf("saveSession() failed: %v", err)
	}

	if _, err := client.loadSession(context.Background()); err == nil {
		t.Error("loadSession() should reject a session for a different user")
	}
}
