package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

// mediaTypeClip is Instagram's media_type value for video clips.
const mediaTypeClip = 2

// Media is a single item from a user's feed.
type Media struct {
	PK        string
	ID        string
	Code      string
	MediaType int
	Username  string
	VideoURL  string
}

// RecentReels returns up to limit recent clips from an account,
// shuffled so repeated runs do not always pick the same items.
func (c *Client) RecentReels(ctx context.Context, account string, limit int) ([]Media, error) {
	userID, err := c.resolveUserID(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", account, err)
	}

	var resp struct {
		Items []struct {
			PK        json.Number `json:"pk"`
			ID        string      `json:"id"`
			Code      string      `json:"code"`
			MediaType int         `json:"media_type"`
			User      struct {
				Username string `json:"username"`
			} `json:"user"`
			VideoVersions []struct {
				URL string `json:"url"`
			} `json:"video_versions"`
		} `json:"items"`
	}

	query := url.Values{"count": {"30"}}
	if err := c.get(ctx, "/feed/user/"+userID+"/", query, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch feed for %s: %w", account, err)
	}

	var reels []Media
	for _, item := range resp.Items {
		if item.MediaType != mediaTypeClip {
			continue
		}
		media := Media{
			PK:        item.PK.String(),
			ID:        item.ID,
			Code:      item.Code,
			MediaType: item.MediaType,
			Username:  item.User.Username,
		}
		if media.Username == "" {
			media.Username = account
		}
		if len(item.VideoVersions) > 0 {
			media.VideoURL = item.VideoVersions[0].URL
		}
		reels = append(reels, media)
	}

	rand.Shuffle(len(reels), func(i, j int) {
		reels[i], reels[j] = reels[j], reels[i]
	})

	if limit > 0 && len(reels) > limit {
		reels = reels[:limit]
	}

	logging.Debug("Found %d reels for %s", len(reels), account)
	return reels, nil
}

// resolveUserID looks up the numeric user id for a username, cached
// for the life of the client.
func (c *Client) resolveUserID(ctx context.Context, username string) (string, error) {
	c.userIDsMu.Lock()
	if id, ok := c.userIDs[username]; ok {
		c.userIDsMu.Unlock()
		return id, nil
	}
	c.userIDsMu.Unlock()

	var resp struct {
		User struct {
			PK json.Number `json:"pk"`
		} `json:"user"`
	}
	if err := c.get(ctx, "/users/"+url.PathEscape(username)+"/usernameinfo/", nil, &resp); err != nil {
		return "", err
	}
	id := resp.User.PK.String()
	if id == "" || id == "0" {
		return "", ErrUserNotFound
	}

	c.userIDsMu.Lock()
	c.userIDs[username] = id
	c.userIDsMu.Unlock()
	return id, nil
}

// UploadClip uploads a video file as a clip with the given caption.
// coverPath is optional; when set the frame is sent as the clip cover.
// Returns the new media's pk.
func (c *Client) UploadClip(ctx context.Context, path, caption, coverPath string) (string, error) {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.UploadsTotal.WithLabelValues(status).Inc()
		metrics.UploadDuration.Observe(time.Since(start).Seconds())
	}()

	uploadID := fmt.Sprintf("%d", time.Now().UnixMilli())

	if err := c.uploadVideo(ctx, path, uploadID); err != nil {
		status = "error"
		return "", fmt.Errorf("video upload failed: %w", err)
	}

	if coverPath != "" {
		if err := c.uploadCover(ctx, coverPath, uploadID); err != nil {
			// A missing cover degrades the post but should not fail it
			logging.Warn("Cover upload failed, continuing without: %v", err)
		}
	}

	pk, err := c.configureClip(ctx, uploadID, caption)
	if err != nil {
		status = "error"
		return "", fmt.Errorf("clip configure failed: %w", err)
	}

	logging.Info("Uploaded clip %s from %s in %v", pk, filepath.Base(path), time.Since(start))
	return pk, nil
}

func (c *Client) uploadVideo(ctx context.Context, path, uploadID string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("upload_id", uploadID); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("video", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	logging.Debug("Uploading %s (%d bytes)", filepath.Base(path), info.Size())

	var resp struct {
		Status string `json:"status"`
	}
	err = c.do(ctx, "POST", "/rupload_igvideo/"+uploadID+"/", nil, &body, writer.FormDataContentType(), &resp)
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("upload rejected")
	}
	return nil
}

func (c *Client) uploadCover(ctx context.Context, coverPath, uploadID string) error {
	data, err := os.ReadFile(coverPath)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("upload_id", uploadID); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("photo", filepath.Base(coverPath))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	var resp struct {
		Status string `json:"status"`
	}
	return c.do(ctx, "POST", "/rupload_igphoto/"+uploadID+"/", nil, &body, writer.FormDataContentType(), &resp)
}

func (c *Client) configureClip(ctx context.Context, uploadID, caption string) (string, error) {
	form := url.Values{
		"upload_id": {uploadID},
		"caption":   {caption},
	}

	var resp struct {
		Status string `json:"status"`
		Media  struct {
			PK json.Number `json:"pk"`
		} `json:"media"`
	}
	if err := c.postForm(ctx, "/media/configure_to_clips/", form, &resp); err != nil {
		return "", err
	}
	if resp.Status != "ok" {
		return "", fmt.Errorf("configure rejected")
	}
	return resp.Media.PK.String(), nil
}

// Comment posts a comment on a media item.
func (c *Client) Comment(ctx context.Context, mediaID, text string) error {
	form := url.Values{"comment_text": {text}}

	var resp struct {
		Status string `json:"status"`
	}
	if err := c.postForm(ctx, "/media/"+url.PathEscape(mediaID)+"/comment/", form, &resp); err != nil {
		metrics.CreditCommentsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to comment on %s: %w", mediaID, err)
	}
	if resp.Status != "ok" {
		metrics.CreditCommentsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("comment on %s rejected", mediaID)
	}

	metrics.CreditCommentsTotal.WithLabelValues("success").Inc()
	logging.Debug("Commented on media %s", mediaID)
	return nil
}
