package filesystem

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestStatWithRetrySuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reel.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry failed: %v", err)
	}
	if info.Name() != "reel.mp4" {
		t.Errorf("Expected name reel.mp4, got %s", info.Name())
	}
}

func TestStatWithRetryNotFoundNoRetry(t *testing.T) {
	config := RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}

	start := time.Now()
	_, err := StatWithRetry("/nonexistent/path/reel.mp4", config)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected error for nonexistent path")
	}
	if !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
	// Non-transient errors must fail fast (no backoff sleeps)
	if elapsed > 50*time.Millisecond {
		t.Errorf("Non-transient error took %v, should not retry", elapsed)
	}
}

func TestOpenWithRetrySuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reel.mp4")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := OpenWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry failed: %v", err)
	}
	defer f.Close()
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"estale", syscall.ESTALE, true},
		{"eio", syscall.EIO, true},
		{"enoent", syscall.ENOENT, false},
		{"wrapped estale", &os.PathError{Op: "stat", Path: "/data/x", Err: syscall.ESTALE}, true},
		{"plain error", os.ErrClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
