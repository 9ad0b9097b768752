package database

import "time"

// ReelStatus tracks where a reel is in the repost pipeline.
type ReelStatus string

const (
	// StatusDownloaded means the file is on disk awaiting a posting slot.
	StatusDownloaded ReelStatus = "downloaded"
	// StatusPending means the reel has been sent to the admin for approval.
	StatusPending ReelStatus = "pending"
	// StatusPosted means the reel was uploaded successfully.
	StatusPosted ReelStatus = "posted"
	// StatusRejected means the admin declined the reel.
	StatusRejected ReelStatus = "rejected"
	// StatusFailed means the upload attempt errored.
	StatusFailed ReelStatus = "failed"
)

// Reel is a downloaded reel tracked by the store.
type Reel struct {
	ID            int64      `json:"id"`
	MediaPK       string     `json:"mediaPk"`
	Code          string     `json:"code,omitempty"`
	SourceAccount string     `json:"sourceAccount"`
	FilePath      string     `json:"filePath"`
	Size          int64      `json:"size"`
	Duration      float64    `json:"duration,omitempty"`
	Status        ReelStatus `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Post is a successfully published repost.
type Post struct {
	ID            int64     `json:"id"`
	ReelID        int64     `json:"reelId"`
	MediaPK       string    `json:"mediaPk"`
	SourceAccount string    `json:"sourceAccount"`
	Caption       string    `json:"caption"`
	PostedAt      time.Time `json:"postedAt"`
}

// Approval is an audit record of an admin decision.
type Approval struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"` // "demo-start", "demo-post", "post"
	ReelID    int64     `json:"reelId,omitempty"`
	Decision  string    `json:"decision"` // "approved", "rejected", "timeout"
	DecidedBy int64     `json:"decidedBy,omitempty"`
	Latency   float64   `json:"latencySeconds"`
	CreatedAt time.Time `json:"createdAt"`
}

// User represents the single admin account for the HTTP API.
type User struct {
	ID           int64     `json:"id"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session represents an authenticated admin API session.
type Session struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}
