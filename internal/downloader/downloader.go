package downloader

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reelpost/internal/database"
	"reelpost/internal/ffmpeg"
	"reelpost/internal/instagram"
	"reelpost/internal/logging"
	"reelpost/internal/metrics"
	"reelpost/internal/workers"
)

const (
	// Each yt-dlp invocation gets its own deadline so one stuck
	// download cannot stall the whole batch.
	downloadTimeout = 180 * time.Second

	reelsPerAccount = 5
)

// reelLister is the Instagram surface the downloader needs.
type reelLister interface {
	RecentReels(ctx context.Context, account string, limit int) ([]instagram.Media, error)
}

// reelStore registers downloaded files.
type reelStore interface {
	InsertReel(ctx context.Context, reel *database.Reel) error
	GetReelByPath(ctx context.Context, path string) (*database.Reel, error)
}

// prober reads media metadata from downloaded files.
type prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// Downloader fetches reels from the configured source accounts.
type Downloader struct {
	instagram reelLister
	store     reelStore
	probe     prober
	reelsDir  string
	accounts  []string

	// binary is overridable in tests
	binary string
}

// New creates a downloader writing into reelsDir.
func New(ig reelLister, store reelStore, probe prober, reelsDir string, accounts []string) *Downloader {
	return &Downloader{
		instagram: ig,
		store:     store,
		probe:     probe,
		reelsDir:  reelsDir,
		accounts:  accounts,
		binary:    "yt-dlp",
	}
}

// Result summarizes one batch run.
type Result struct {
	Attempted  int
	Downloaded int
	Skipped    int
	Failed     int
	Duration   time.Duration
}

func (r Result) String() string {
	return fmt.Sprintf("%d downloaded, %d skipped, %d failed (of %d) in %v",
		r.Downloaded, r.Skipped, r.Failed, r.Attempted, r.Duration.Round(time.Second))
}

// RunBatch picks a source account at random, lists its recent reels and
// downloads the ones not already on disk. Accounts whose listing fails
// are skipped in favor of the next pick, so one bad source cannot abort
// the batch.
func (d *Downloader) RunBatch(ctx context.Context) (*Result, error) {
	start := time.Now()

	d.cleanupPartials()

	order := make([]string, len(d.accounts))
	copy(order, d.accounts)
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	var candidates []instagram.Media
	for _, account := range order {
		reels, err := d.instagram.RecentReels(ctx, account, reelsPerAccount)
		if err != nil {
			logging.Warn("Skipping source %s: %v", account, err)
			continue
		}
		if len(reels) == 0 {
			logging.Debug("Source %s has no recent reels", account)
			continue
		}
		logging.Info("Selected source @%s (%d candidates)", account, len(reels))
		candidates = reels
		break
	}

	if len(candidates) == 0 {
		logging.Warn("Download batch found no candidate reels")
		metrics.DownloadBatchesTotal.WithLabelValues("error").Inc()
		return &Result{Duration: time.Since(start)}, fmt.Errorf("no candidate reels found across %d sources", len(d.accounts))
	}

	result := &Result{Attempted: len(candidates)}

	workerCount := workers.ForIO(0)
	if workerCount > len(candidates) {
		workerCount = len(candidates)
	}
	logging.Info("Downloading %d reels with %d workers", len(candidates), workerCount)

	jobs := make(chan instagram.Media)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for media := range jobs {
				outcome := d.download(ctx, media)
				mu.Lock()
				switch outcome {
				case outcomeDownloaded:
					result.Downloaded++
				case outcomeSkipped:
					result.Skipped++
				default:
					result.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, media := range candidates {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return result, ctx.Err()
		case jobs <- media:
		}
	}
	close(jobs)
	wg.Wait()

	result.Duration = time.Since(start)
	if result.Downloaded > 0 || result.Failed == 0 {
		metrics.DownloadBatchesTotal.WithLabelValues("success").Inc()
	} else {
		metrics.DownloadBatchesTotal.WithLabelValues("error").Inc()
	}
	logging.Info("Download batch complete: %s", result)

	// A batch that produced nothing at all is a failure; skips mean the
	// content is already on disk and still count as a usable outcome.
	if result.Downloaded == 0 && result.Skipped == 0 {
		return result, fmt.Errorf("download batch produced no files: %d of %d failed", result.Failed, result.Attempted)
	}
	return result, nil
}

// cleanupPartials removes leftover yt-dlp temp files from interrupted runs.
func (d *Downloader) cleanupPartials() {
	for _, pattern := range []string{"*.part", "*.ytdl"} {
		matches, err := filepath.Glob(filepath.Join(d.reelsDir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil {
				logging.Warn("Failed to remove stale partial %s: %v", path, err)
			} else {
				logging.Debug("Removed stale partial %s", path)
			}
		}
	}
}

type outcome int

const (
	outcomeDownloaded outcome = iota
	outcomeSkipped
	outcomeFailed
)

// FilePath returns the on-disk path a media item downloads to.
func (d *Downloader) FilePath(media instagram.Media) string {
	return filepath.Join(d.reelsDir, fmt.Sprintf("%s_%s.mp4", media.Username, media.PK))
}

func (d *Downloader) download(ctx context.Context, media instagram.Media) outcome {
	outputPath := d.FilePath(media)

	if _, err := os.Stat(outputPath); err == nil {
		logging.Debug("Reel %s already downloaded, skipping", media.PK)
		metrics.DownloadsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped
	}
	if existing, err := d.store.GetReelByPath(ctx, outputPath); err == nil &&
		existing.Status == database.StatusPosted {
		logging.Debug("Reel %s already posted, skipping", media.PK)
		metrics.DownloadsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped
	}

	start := time.Now()
	sourceURL := "https://www.instagram.com/reel/" + media.Code + "/"

	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	cmd := exec.CommandContext(dlCtx, d.binary,
		"-f", "bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"-o", outputPath,
		sourceURL,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)
	metrics.DownloadDuration.Observe(duration.Seconds())

	if err != nil {
		if dlCtx.Err() == context.DeadlineExceeded {
			metrics.DownloadsTotal.WithLabelValues("timeout").Inc()
			logging.Error("Download of %s timed out after %v", media.Code, downloadTimeout)
		} else {
			metrics.DownloadsTotal.WithLabelValues("error").Inc()
			logging.Error("Download of %s failed: %v (%s)", media.Code, err, firstLine(stderr.String()))
		}
		// yt-dlp can leave partial files behind
		if removeErr := os.Remove(outputPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logging.Warn("Failed to remove partial download %s: %v", outputPath, removeErr)
		}
		return outcomeFailed
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		logging.Error("yt-dlp reported success but %s is missing: %v", outputPath, err)
		return outcomeFailed
	}

	reel := &database.Reel{
		MediaPK:       media.PK,
		Code:          media.Code,
		SourceAccount: media.Username,
		FilePath:      outputPath,
		Size:          info.Size(),
		Status:        database.StatusDownloaded,
	}
	if d.probe != nil {
		if mediaInfo, probeErr := d.probe.Probe(ctx, outputPath); probeErr == nil {
			reel.Duration = mediaInfo.Duration
		} else {
			logging.Debug("Probe of %s failed: %v", outputPath, probeErr)
		}
	}

	if err := d.store.InsertReel(ctx, reel); err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		logging.Error("Failed to register reel %s: %v", media.PK, err)
		return outcomeFailed
	}

	metrics.DownloadsTotal.WithLabelValues("success").Inc()
	logging.Info("Downloaded %s (%s, %s) in %v",
		filepath.Base(outputPath), media.Username, formatSize(info.Size()), duration.Round(time.Second))
	return outcomeDownloaded
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
