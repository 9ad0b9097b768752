package handlers

import (
	"context"
	"net/http"

	"reelpost/internal/logging"
)

// TriggerDownload starts a download batch in the background.
func (h *Handlers) TriggerDownload(w http.ResponseWriter, _ *http.Request) {
	if !h.downloadRunning.CompareAndSwap(false, true) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, map[string]string{
			"status":  "already_running",
			"message": "A download batch is already in progress",
		})
		return
	}

	go func() {
		defer h.downloadRunning.Store(false)
		if err := h.jobs.RunDownload(context.Background()); err != nil {
			logging.Error("Manual download batch failed: %v", err)
		}
	}()

	logging.Info("Download batch triggered via API")

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":  "started",
		"message": "Download batch started",
	})
}

// TriggerPost starts a posting slot in the background. The upload still
// waits for admin approval over Telegram.
func (h *Handlers) TriggerPost(w http.ResponseWriter, _ *http.Request) {
	if !h.postRunning.CompareAndSwap(false, true) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, map[string]string{
			"status":  "already_running",
			"message": "A posting slot is already in progress",
		})
		return
	}

	go func() {
		defer h.postRunning.Store(false)
		if err := h.jobs.RunPostSlot(context.Background()); err != nil {
			logging.Error("Manual posting slot failed: %v", err)
		}
	}()

	logging.Info("Posting slot triggered via API")

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":  "started",
		"message": "Posting slot started",
	})
}
