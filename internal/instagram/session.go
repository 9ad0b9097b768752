package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"reelpost/internal/logging"
)

// Session holds the persisted authentication state for one account.
type Session struct {
	Username  string    `json:"username"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	CSRFToken string    `json:"csrf_token"`
	DeviceID  string    `json:"device_id"`
	SavedAt   time.Time `json:"saved_at"`
}

// metadataStore mirrors the session into the database so a lost volume
// file can be recovered. The file remains authoritative.
type metadataStore interface {
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
}

const sessionMetadataKey = "instagram_session"

// loadSession reads the session file, falling back to the database
// mirror when the file is missing.
func (c *Client) loadSession(ctx context.Context) (*Session, error) {
	data, err := os.ReadFile(c.sessionFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read session file: %w", err)
		}
		if c.store == nil {
			return nil, err
		}
		mirrored, storeErr := c.store.GetMetadata(ctx, sessionMetadataKey)
		if storeErr != nil || mirrored == "" {
			return nil, err
		}
		logging.Info("Session file missing, restoring from database mirror")
		data = []byte(mirrored)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if session.Username != c.username {
		return nil, fmt.Errorf("session belongs to %q, expected %q", session.Username, c.username)
	}
	return &session, nil
}

// saveSession writes the session file and mirrors it into the database.
func (c *Client) saveSession(ctx context.Context, session *Session) error {
	session.SavedAt = time.Now()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(c.sessionFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if c.store != nil {
		if err := c.store.SetMetadata(ctx, sessionMetadataKey, string(data)); err != nil {
			logging.Warn("Failed to mirror session to database: %v", err)
		}
	}
	return nil
}

// clearSession removes a session that failed verification, including
// the database mirror so the stale state cannot be restored from it.
func (c *Client) clearSession(ctx context.Context) {
	if err := os.Remove(c.sessionFile); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove stale session file: %v", err)
	}
	if c.store != nil {
		if err := c.store.SetMetadata(ctx, sessionMetadataKey, ""); err != nil {
			logging.Warn("Failed to clear session mirror: %v", err)
		}
	}
}
