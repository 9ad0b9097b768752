package handlers

import (
	"net/http"
	"runtime"
	"time"

	"reelpost/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Pipeline state
	ReelsByStatus    map[string]int `json:"reelsByStatus,omitempty"`
	TotalPosts       int            `json:"totalPosts"`
	PendingApprovals int            `json:"pendingApprovals"`
	DownloadRunning  bool           `json:"downloadRunning"`
	PostRunning      bool           `json:"postRunning"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.db.GetStats()

	response := HealthResponse{
		Ready:            h.ready.Load(),
		Version:          startup.Version,
		Uptime:           time.Since(h.started).Round(time.Second).String(),
		ReelsByStatus:    stats.ReelsByStatus,
		TotalPosts:       stats.TotalPosts,
		PendingApprovals: h.broker.PendingCount(),
		DownloadRunning:  h.downloadRunning.Load(),
		PostRunning:      h.postRunning.Load(),
		GoVersion:        runtime.Version(),
		NumCPU:           runtime.NumCPU(),
		NumGoroutine:     runtime.NumGoroutine(),
	}

	if response.Ready {
		response.Status = statusHealthy
	} else {
		response.Status = statusStarting
	}

	w.Header().Set("Content-Type", "application/json")

	// 503 until startup has finished
	if !response.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{
			"status": "ready",
		})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
	}
}
