package handlers

import (
	"net/http"
	"strconv"

	"reelpost/internal/database"
	"reelpost/internal/logging"
)

const defaultListLimit = 50

// ListPosts returns the most recent published reposts.
func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	posts, err := h.db.ListPosts(ctx, listLimit(r))
	if err != nil {
		logging.Error("Failed to list posts: %v", err)
		writeJSONError(w, "Failed to list posts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"posts": posts,
		"count": len(posts),
	})
}

// ListApprovals returns the most recent admin decisions.
func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	approvals, err := h.db.ListApprovals(ctx, listLimit(r))
	if err != nil {
		logging.Error("Failed to list approvals: %v", err)
		writeJSONError(w, "Failed to list approvals", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"approvals": approvals,
		"count":     len(approvals),
	})
}

// StatsResponse summarizes the pipeline state.
type StatsResponse struct {
	ReelsByStatus    map[string]int `json:"reelsByStatus"`
	TotalPosts       int            `json:"totalPosts"`
	Postable         int            `json:"postable"`
	PendingApprovals int            `json:"pendingApprovals"`
	ActiveSessions   int            `json:"activeSessions"`
	LastPostRun      string         `json:"lastPostRun,omitempty"`
	LastDownloadRun  string         `json:"lastDownloadRun,omitempty"`
}

// GetStats returns store and pipeline statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats := h.db.GetStats()

	postable, err := h.library.CountPostable(ctx)
	if err != nil {
		logging.Debug("Failed to count postable reels: %v", err)
	}

	lastPost, err := h.db.GetMetadata(ctx, database.MetaLastPostRun)
	if err != nil {
		logging.Debug("Failed to read last post run: %v", err)
	}
	lastDownload, err := h.db.GetMetadata(ctx, database.MetaLastDownloadRun)
	if err != nil {
		logging.Debug("Failed to read last download run: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, StatsResponse{
		ReelsByStatus:    stats.ReelsByStatus,
		TotalPosts:       stats.TotalPosts,
		Postable:         postable,
		PendingApprovals: h.broker.PendingCount(),
		ActiveSessions:   stats.ActiveSessions,
		LastPostRun:      lastPost,
		LastDownloadRun:  lastDownload,
	})
}

func listLimit(r *http.Request) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}
