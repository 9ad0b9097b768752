// Package metrics defines the Prometheus metrics exported by the reelpost
// service and provides a background collector that keeps gauge values in
// sync with the reel store.
//
// All metrics use the "reelpost_" namespace. Metric registration happens at
// package init time via promauto; call InitializeMetrics once at startup to
// pre-populate known label combinations so every series is present from the
// first scrape.
package metrics
