package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// InsertReel records a freshly downloaded reel. The reel's ID is filled in
// on success. If a record already exists for the same file path it is
// replaced (re-downloads overwrite the file on disk too).
func (d *Database) InsertReel(ctx context.Context, reel *Reel) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_reel", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if reel.Status == "" {
		reel.Status = StatusDownloaded
	}

	var result sql.Result
	result, err = d.db.ExecContext(ctx, `
		INSERT INTO reels (media_pk, code, source_account, file_path, size, duration, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			media_pk = excluded.media_pk,
			code = excluded.code,
			source_account = excluded.source_account,
			size = excluded.size,
			duration = excluded.duration,
			status = excluded.status,
			updated_at = strftime('%s', 'now')
	`, reel.MediaPK, reel.Code, reel.SourceAccount, reel.FilePath, reel.Size, reel.Duration, reel.Status)
	if err != nil {
		return fmt.Errorf("failed to insert reel: %w", err)
	}

	if id, idErr := result.LastInsertId(); idErr == nil {
		reel.ID = id
	}
	return nil
}

// UpdateReelStatus moves a reel to a new pipeline status.
func (d *Database) UpdateReelStatus(ctx context.Context, id int64, status ReelStatus) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_reel_status", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var result sql.Result
	result, err = d.db.ExecContext(ctx,
		"UPDATE reels SET status = ?, updated_at = strftime('%s', 'now') WHERE id = ?",
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update reel status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// GetReel retrieves a single reel by ID.
func (d *Database) GetReel(ctx context.Context, id int64) (*Reel, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_reel", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, media_pk, code, source_account, file_path, size, duration, status, created_at, updated_at
		FROM reels WHERE id = ?
	`, id)

	reel, scanErr := scanReel(row)
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			err = ErrNotFound
			return nil, err
		}
		err = scanErr
		return nil, err
	}
	return reel, nil
}

// GetReelByPath retrieves a single reel by its file path.
func (d *Database) GetReelByPath(ctx context.Context, path string) (*Reel, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_reel", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, media_pk, code, source_account, file_path, size, duration, status, created_at, updated_at
		FROM reels WHERE file_path = ?
	`, path)

	reel, scanErr := scanReel(row)
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			err = ErrNotFound
			return nil, err
		}
		err = scanErr
		return nil, err
	}
	return reel, nil
}

// ListReels returns reels, optionally filtered by status. Pass an empty
// status to list all. Newest first.
func (d *Database) ListReels(ctx context.Context, status ReelStatus) ([]Reel, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_reels", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		SELECT id, media_pk, code, source_account, file_path, size, duration, status, created_at, updated_at
		FROM reels`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, queryErr := d.db.QueryContext(ctx, query, args...)
	if queryErr != nil {
		err = queryErr
		return nil, fmt.Errorf("failed to list reels: %w", err)
	}
	defer rows.Close()

	var reels []Reel
	for rows.Next() {
		reel, scanErr := scanReel(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		reels = append(reels, *reel)
	}
	err = rows.Err()
	return reels, err
}

// DeleteReel removes a reel record. The file on disk is the caller's
// responsibility.
func (d *Database) DeleteReel(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_reel", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM reels WHERE id = ?", id)
	return err
}

// RecordPost appends to the publish history.
func (d *Database) RecordPost(ctx context.Context, post *Post) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_post", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var result sql.Result
	result, err = d.db.ExecContext(ctx, `
		INSERT INTO posts (reel_id, media_pk, source_account, caption)
		VALUES (?, ?, ?, ?)
	`, post.ReelID, post.MediaPK, post.SourceAccount, post.Caption)
	if err != nil {
		return fmt.Errorf("failed to record post: %w", err)
	}

	if id, idErr := result.LastInsertId(); idErr == nil {
		post.ID = id
	}
	return nil
}

// ListPosts returns publish history, newest first, capped at limit
// (0 = no cap).
func (d *Database) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_posts", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		SELECT id, reel_id, media_pk, source_account, COALESCE(caption, ''), posted_at
		FROM posts ORDER BY posted_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, queryErr := d.db.QueryContext(ctx, query, args...)
	if queryErr != nil {
		err = queryErr
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var post Post
		var postedAt int64
		if scanErr := rows.Scan(&post.ID, &post.ReelID, &post.MediaPK, &post.SourceAccount, &post.Caption, &postedAt); scanErr != nil {
			err = scanErr
			return nil, err
		}
		post.PostedAt = time.Unix(postedAt, 0)
		posts = append(posts, post)
	}
	err = rows.Err()
	return posts, err
}

// RecordApproval appends an admin decision to the audit trail.
func (d *Database) RecordApproval(ctx context.Context, approval *Approval) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_approval", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var reelID interface{}
	if approval.ReelID != 0 {
		reelID = approval.ReelID
	}
	var decidedBy interface{}
	if approval.DecidedBy != 0 {
		decidedBy = approval.DecidedBy
	}

	var result sql.Result
	result, err = d.db.ExecContext(ctx, `
		INSERT INTO approvals (kind, reel_id, decision, decided_by, latency_seconds)
		VALUES (?, ?, ?, ?, ?)
	`, approval.Kind, reelID, approval.Decision, decidedBy, approval.Latency)
	if err != nil {
		return fmt.Errorf("failed to record approval: %w", err)
	}

	if id, idErr := result.LastInsertId(); idErr == nil {
		approval.ID = id
	}
	return nil
}

// ListApprovals returns the decision audit trail, newest first, capped at
// limit (0 = no cap).
func (d *Database) ListApprovals(ctx context.Context, limit int) ([]Approval, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_approvals", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		SELECT id, kind, COALESCE(reel_id, 0), decision, COALESCE(decided_by, 0), latency_seconds, created_at
		FROM approvals ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, queryErr := d.db.QueryContext(ctx, query, args...)
	if queryErr != nil {
		err = queryErr
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []Approval
	for rows.Next() {
		var a Approval
		var createdAt int64
		if scanErr := rows.Scan(&a.ID, &a.Kind, &a.ReelID, &a.Decision, &a.DecidedBy, &a.Latency, &createdAt); scanErr != nil {
			err = scanErr
			return nil, err
		}
		a.CreatedAt = time.Unix(createdAt, 0)
		approvals = append(approvals, a)
	}
	err = rows.Err()
	return approvals, err
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanReel.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReel(row rowScanner) (*Reel, error) {
	var reel Reel
	var code sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&reel.ID, &reel.MediaPK, &code, &reel.SourceAccount, &reel.FilePath,
		&reel.Size, &reel.Duration, &reel.Status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	reel.Code = code.String
	reel.CreatedAt = time.Unix(createdAt, 0)
	reel.UpdatedAt = time.Unix(updatedAt, 0)
	return &reel, nil
}
