package database

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

// Metadata keys used by the service.
const (
	MetaTelegramOffset   = "telegram_update_offset"
	MetaInstagramSession = "instagram_session"
	MetaLastPostRun      = "last_post_run"
	MetaLastDownloadRun  = "last_download_run"
)

// GetMetadata returns the value for a key, or "" if the key is absent.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_metadata", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err = d.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		err = nil
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata upserts a key/value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_metadata", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value)
	return err
}

// GetTelegramOffset returns the persisted long-poll update offset.
func (d *Database) GetTelegramOffset(ctx context.Context) (int64, error) {
	value, err := d.GetMetadata(ctx, MetaTelegramOffset)
	if err != nil || value == "" {
		return 0, err
	}
	offset, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, nil
	}
	return offset, nil
}

// SetTelegramOffset persists the long-poll update offset.
func (d *Database) SetTelegramOffset(ctx context.Context, offset int64) error {
	return d.SetMetadata(ctx, MetaTelegramOffset, strconv.FormatInt(offset, 10))
}
