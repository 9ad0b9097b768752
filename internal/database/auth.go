package database

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"reelpost/internal/logging"
)

// SessionDuration is the length of time an admin API session remains valid.
const SessionDuration = 7 * 24 * time.Hour // 7 days

// GetSessionDuration returns the session validity window.
func GetSessionDuration() time.Duration {
	return SessionDuration
}

// ErrInvalidCredentials is returned when password validation fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidSession is returned when a session token is missing or expired.
var ErrInvalidSession = errors.New("invalid or expired session")

// HasUsers checks if the admin user exists (single-user service).
func (d *Database) HasUsers(ctx context.Context) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// CreateUser creates the single admin user with the given password.
func (d *Database) CreateUser(ctx context.Context, password string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_user", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		"INSERT INTO users (password_hash) VALUES (?)",
		string(hash),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdatePassword replaces the admin password.
func (d *Database) UpdatePassword(ctx context.Context, password string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_password", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = strftime('%s', 'now')",
		string(hash),
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	// Invalidate all existing sessions after a password change
	if _, sessErr := d.db.ExecContext(ctx, "DELETE FROM sessions"); sessErr != nil {
		logging.Warn("Failed to clear sessions after password change: %v", sessErr)
	}

	return nil
}

// ValidatePassword checks the password and returns the user if valid.
func (d *Database) ValidatePassword(ctx context.Context, password string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("validate_password", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var user User
	var createdAt, updatedAt int64

	err = d.db.QueryRowContext(ctx,
		"SELECT id, password_hash, created_at, updated_at FROM users LIMIT 1",
	).Scan(&user.ID, &user.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		err = ErrInvalidCredentials
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		err = ErrInvalidCredentials
		return nil, err
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// CreateSession creates a new session for a user.
func (d *Database) CreateSession(ctx context.Context, userID int64) (*Session, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_session", start, err) }()

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	expiresAt := time.Now().Add(SessionDuration)

	result, err := d.db.ExecContext(ctx,
		"INSERT INTO sessions (user_id, token, expires_at) VALUES (?, ?, ?)",
		userID, token, expiresAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	session := &Session{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if id, idErr := result.LastInsertId(); idErr == nil {
		session.ID = id
	}

	return session, nil
}

// ValidateSession checks if a session token is valid and returns the owner.
func (d *Database) ValidateSession(ctx context.Context, token string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("validate_session", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var user User
	var createdAt, updatedAt int64

	err = d.db.QueryRowContext(ctx, `
		SELECT u.id, u.password_hash, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ? AND s.expires_at > strftime('%s', 'now')
	`, token).Scan(&user.ID, &user.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		err = ErrInvalidSession
		return nil, err
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// ExtendSession pushes a session's expiry forward (sliding expiration).
func (d *Database) ExtendSession(ctx context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		"UPDATE sessions SET expires_at = ? WHERE token = ?",
		time.Now().Add(SessionDuration).Unix(), token,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidSession
	}
	return nil
}

// DeleteSession removes a session.
func (d *Database) DeleteSession(ctx context.Context, token string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_session", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (d *Database) CleanExpiredSessions() {
	start := time.Now()
	var err error
	defer func() { recordQuery("clean_sessions", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= strftime('%s', 'now')",
	)
	if err != nil {
		logging.Error("Failed to clean expired sessions: %v", err)
		return
	}

	if rows, rowsErr := result.RowsAffected(); rowsErr == nil && rows > 0 {
		logging.Debug("Cleaned %d expired sessions", rows)
	}
}

// generateToken returns a cryptographically random session token.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
