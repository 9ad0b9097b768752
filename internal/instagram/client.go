package instagram

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

const (
	defaultBaseURL = "https://i.instagram.com/api/v1"
	userAgent      = "Instagram 269.0.0.18.75 Android (30/11; 420dpi; 1080x2220)"

	loginAttempts = 3
	loginBackoff  = 20 * time.Second
)

// Typed errors surfaced by Login and API calls.
var (
	ErrChallengeRequired = errors.New("challenge required, manual verification needed")
	ErrLoginRequired     = errors.New("login required")
	ErrUserNotFound      = errors.New("user not found")
)

// Options configures a Client.
type Options struct {
	Username    string
	Password    string
	SessionFile string
	Store       metadataStore

	// BaseURL and HTTPClient override the defaults, used in tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Client is an authenticated private-API client for a single account.
type Client struct {
	http        *http.Client
	baseURL     string
	username    string
	password    string
	sessionFile string
	store       metadataStore

	mu      sync.RWMutex
	session *Session

	// userIDs caches username -> user id lookups
	userIDs   map[string]string
	userIDsMu sync.Mutex

	// sleep is swapped out in tests to skip the login backoff
	sleep func(context.Context, time.Duration) error
}

// New creates a client. Login must be called before any API operation.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		http:        httpClient,
		baseURL:     baseURL,
		username:    opts.Username,
		password:    opts.Password,
		sessionFile: opts.SessionFile,
		store:       opts.Store,
		userIDs:     make(map[string]string),
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Username returns the account the client posts as.
func (c *Client) Username() string {
	return c.username
}

// Login authenticates, preferring a saved session over credentials.
// Credential logins retry with linear backoff; a challenge response
// aborts immediately.
func (c *Client) Login(ctx context.Context) error {
	if session, err := c.loadSession(ctx); err == nil {
		if verifyErr := c.verifySession(ctx, session); verifyErr == nil {
			c.mu.Lock()
			c.session = session
			c.mu.Unlock()
			metrics.InstagramLoginsTotal.WithLabelValues("session", "success").Inc()
			logging.Info("Logged in to Instagram as %s using saved session", c.username)
			return nil
		}
		logging.Warn("Saved session for %s is no longer valid, logging in fresh", c.username)
		metrics.InstagramLoginsTotal.WithLabelValues("session", "error").Inc()
		c.clearSession(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= loginAttempts; attempt++ {
		session, err := c.credentialLogin(ctx)
		if err == nil {
			c.mu.Lock()
			c.session = session
			c.mu.Unlock()
			if saveErr := c.saveSession(ctx, session); saveErr != nil {
				logging.Warn("Failed to persist session: %v", saveErr)
			}
			metrics.InstagramLoginsTotal.WithLabelValues("credentials", "success").Inc()
			logging.Info("Logged in to Instagram as %s with credentials", c.username)
			return nil
		}

		metrics.InstagramLoginsTotal.WithLabelValues("credentials", "error").Inc()
		if errors.Is(err, ErrChallengeRequired) {
			logging.Error("Instagram requires manual verification for %s, not retrying", c.username)
			return err
		}

		lastErr = err
		if attempt < loginAttempts {
			backoff := time.Duration(attempt) * loginBackoff
			logging.Warn("Login attempt %d/%d failed: %v (retrying in %v)", attempt, loginAttempts, err, backoff)
			if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
				return sleepErr
			}
		}
	}

	return fmt.Errorf("login failed after %d attempts: %w", loginAttempts, lastErr)
}

// verifySession probes the timeline to confirm a saved session works.
func (c *Client) verifySession(ctx context.Context, session *Session) error {
	c.mu.Lock()
	prev := c.session
	c.session = session
	c.mu.Unlock()

	var resp struct {
		Status string `json:"status"`
	}
	err := c.get(ctx, "/accounts/current_user/", nil, &resp)

	if err != nil {
		c.mu.Lock()
		c.session = prev
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) credentialLogin(ctx context.Context) (*Session, error) {
	deviceID, err := randomHex(8)
	if err != nil {
		return nil, err
	}
	deviceID = "android-" + deviceID

	form := url.Values{
		"username":  {c.username},
		"password":  {c.password},
		"device_id": {deviceID},
	}

	var resp struct {
		Status       string `json:"status"`
		Message      string `json:"message"`
		ErrorType    string `json:"error_type"`
		LoggedInUser struct {
			PK       json.Number `json:"pk"`
			Username string      `json:"username"`
		} `json:"logged_in_user"`
		SessionID string `json:"session_id"`
		CSRFToken string `json:"csrf_token"`
	}

	if err := c.postForm(ctx, "/accounts/login/", form, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		if resp.ErrorType == "checkpoint_challenge_required" || strings.Contains(resp.Message, "challenge") {
			return nil, ErrChallengeRequired
		}
		return nil, fmt.Errorf("login rejected: %s", resp.Message)
	}

	return &Session{
		Username:  c.username,
		UserID:    resp.LoggedInUser.PK.String(),
		SessionID: resp.SessionID,
		CSRFToken: resp.CSRFToken,
		DeviceID:  deviceID,
	}, nil
}

// LoggedIn reports whether a session is active.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// get issues an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, "", out)
}

// postForm issues an authenticated form POST and decodes the response.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	body := strings.NewReader(form.Encode())
	return c.do(ctx, http.MethodPost, path, nil, body, "application/x-www-form-urlencoded", out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out interface{}) error {
	operation := operationName(path)
	start := time.Now()
	status := "success"
	defer func() {
		metrics.InstagramRequestsTotal.WithLabelValues(operation, status).Inc()
		logging.Debug("Instagram %s %s took %v", method, path, time.Since(start))
	}()

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		status = "error"
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.mu.RLock()
	if c.session != nil {
		req.Header.Set("Cookie", "sessionid="+c.session.SessionID+"; csrftoken="+c.session.CSRFToken)
		req.Header.Set("X-CSRFToken", c.session.CSRFToken)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		status = "error"
		return fmt.Errorf("instagram request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		status = "error"
		return fmt.Errorf("%w (HTTP %d)", ErrLoginRequired, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		status = "error"
		return ErrUserNotFound
	}
	if resp.StatusCode >= 400 {
		status = "error"
		if strings.Contains(string(data), "challenge_required") {
			return ErrChallengeRequired
		}
		return fmt.Errorf("instagram returned HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			status = "error"
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// operationName maps an API path to a stable metric label.
func operationName(path string) string {
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 {
		return "unknown"
	}
	switch parts[0] {
	case "accounts":
		if len(parts) > 1 && parts[1] == "login" {
			return "login"
		}
		return "current_user"
	case "users":
		return "user_info"
	case "feed":
		return "user_feed"
	case "media":
		if strings.HasSuffix(path, "comment/") || strings.HasSuffix(path, "comment") {
			return "comment"
		}
		return "configure"
	case "rupload_igvideo":
		return "upload"
	}
	return parts[0]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
