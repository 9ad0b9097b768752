package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"reelpost/internal/database"
	"reelpost/internal/logging"
	"reelpost/internal/streaming"
)

var validStatuses = map[database.ReelStatus]bool{
	database.StatusDownloaded: true,
	database.StatusPending:    true,
	database.StatusPosted:     true,
	database.StatusRejected:   true,
	database.StatusFailed:     true,
}

// ListReels returns tracked reels, optionally filtered by ?status=.
func (h *Handlers) ListReels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := database.ReelStatus(r.URL.Query().Get("status"))
	if status != "" && !validStatuses[status] {
		writeJSONError(w, "Unknown status filter", http.StatusBadRequest)
		return
	}

	reels, err := h.db.ListReels(ctx, status)
	if err != nil {
		logging.Error("Failed to list reels: %v", err)
		writeJSONError(w, "Failed to list reels", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"reels": reels,
		"count": len(reels),
	})
}

// GetReel returns a single reel by id.
func (h *Handlers) GetReel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := reelID(r)
	if err != nil {
		writeJSONError(w, "Invalid reel id", http.StatusBadRequest)
		return
	}

	reel, err := h.db.GetReel(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "Reel not found", http.StatusNotFound)
			return
		}
		logging.Error("Failed to get reel %d: %v", id, err)
		writeJSONError(w, "Failed to get reel", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, reel)
}

// DeleteReel removes a reel record and its file from disk.
func (h *Handlers) DeleteReel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := reelID(r)
	if err != nil {
		writeJSONError(w, "Invalid reel id", http.StatusBadRequest)
		return
	}

	reel, err := h.db.GetReel(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "Reel not found", http.StatusNotFound)
			return
		}
		logging.Error("Failed to get reel %d: %v", id, err)
		writeJSONError(w, "Failed to delete reel", http.StatusInternalServerError)
		return
	}

	if err := os.Remove(reel.FilePath); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove reel file %s: %v", reel.FilePath, err)
	}

	if err := h.db.DeleteReel(ctx, id); err != nil {
		logging.Error("Failed to delete reel %d: %v", id, err)
		writeJSONError(w, "Failed to delete reel", http.StatusInternalServerError)
		return
	}

	logging.Info("Deleted reel %d (%s)", id, reel.FilePath)
	writeJSONStatus(w, "deleted")
}

// StreamReelVideo serves a reel's video file with slow-client protection.
func (h *Handlers) StreamReelVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := reelID(r)
	if err != nil {
		writeJSONError(w, "Invalid reel id", http.StatusBadRequest)
		return
	}

	reel, err := h.db.GetReel(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "Reel not found", http.StatusNotFound)
			return
		}
		logging.Error("Failed to get reel %d: %v", id, err)
		writeJSONError(w, "Failed to get reel", http.StatusInternalServerError)
		return
	}

	// Serve only files that live inside the reels directory
	cleanPath := filepath.Clean(reel.FilePath)
	if !strings.HasPrefix(cleanPath, filepath.Clean(h.reelsDir)+string(os.PathSeparator)) {
		logging.Warn("Reel %d path %s is outside the reels directory", id, reel.FilePath)
		writeJSONError(w, "Reel file not found", http.StatusNotFound)
		return
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSONError(w, "Reel file not found", http.StatusNotFound)
			return
		}
		logging.Error("Failed to open reel file %s: %v", reel.FilePath, err)
		writeJSONError(w, "Failed to open reel file", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Debug("Failed to close reel file: %v", err)
		}
	}()

	w.Header().Set("Content-Type", "video/mp4")
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}

	if err := streaming.StreamWithTimeout(ctx, w, f, streaming.DefaultTimeoutWriterConfig()); err != nil {
		// Client disconnects and stalls are expected, not server faults
		logging.Debug("Stream of reel %d ended early: %v", id, err)
	}
}

func reelID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}
