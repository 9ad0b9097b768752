package metrics

import (
	"time"

	"reelpost/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current store statistics
type Stats struct {
	ReelsByStatus  map[string]int
	TotalPosts     int
	ActiveSessions int
	PendingCount   int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	for _, status := range []string{"downloaded", "pending", "posted", "rejected", "failed"} {
		ReelInventory.WithLabelValues(status).Set(float64(stats.ReelsByStatus[status]))
	}
	SessionsActive.Set(float64(stats.ActiveSessions))
	ApprovalsPending.Set(float64(stats.PendingCount))

	logging.Debug("Metrics collected: reels=%v, posts=%d, sessions=%d",
		stats.ReelsByStatus, stats.TotalPosts, stats.ActiveSessions)
}
