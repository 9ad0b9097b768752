// Package filesystem provides filesystem operations with retry logic for the
// mounted data volume.
//
// The reels directory and session file live on a network-backed volume
// (Railway persistent volume or similar). Stat and Open can transiently fail
// with ESTALE or EIO while the mount recovers; these helpers retry with
// exponential backoff instead of surfacing a one-off error to the posting
// pipeline. All other errors fail immediately.
package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for volume retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isTransientError reports whether an error is worth retrying: a stale file
// handle or I/O error from a recovering network mount.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE || errno == syscall.EIO
	}

	return false
}

// StatWithRetry performs os.Stat with retry logic for transient volume errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", path, config, func() error {
		var statErr error
		info, statErr = os.Stat(path)
		return statErr
	})
	return info, err
}

// OpenWithRetry performs os.Open with retry logic for transient volume errors
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var file *os.File
	err := withRetry("open", path, config, func() error {
		var openErr error
		file, openErr = os.Open(path)
		return openErr
	})
	return file, err
}

// withRetry runs op, retrying transient errors with exponential backoff.
func withRetry(name, path string, config RetryConfig, op func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			if attempt > 0 {
				logging.Info("Volume %s succeeded on retry %d for %s", name, attempt, path)
			}
			return nil
		}

		lastErr = err

		if !isTransientError(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt < config.MaxRetries {
			metrics.FilesystemRetryAttempts.WithLabelValues(name).Inc()
			logging.Debug("Volume %s transient error for %s, retrying in %v (attempt %d/%d)",
				name, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("Volume %s failed after %d retries for %s: %v", name, config.MaxRetries, path, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues(name).Inc()
	return lastErr
}
