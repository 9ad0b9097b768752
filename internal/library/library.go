package library

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"reelpost/internal/database"
	"reelpost/internal/filesystem"
	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

// ErrNoneAvailable is returned when no downloaded reel is ready to post.
var ErrNoneAvailable = errors.New("no reels available to post")

// reelStore is the database surface the library needs.
type reelStore interface {
	InsertReel(ctx context.Context, reel *database.Reel) error
	GetReelByPath(ctx context.Context, path string) (*database.Reel, error)
	ListReels(ctx context.Context, status database.ReelStatus) ([]database.Reel, error)
	UpdateReelStatus(ctx context.Context, id int64, status database.ReelStatus) error
	DeleteReel(ctx context.Context, id int64) error
}

// Library reconciles the reels directory with the store.
type Library struct {
	store    reelStore
	reelsDir string
}

// New creates a library over reelsDir.
func New(store reelStore, reelsDir string) *Library {
	return &Library{store: store, reelsDir: reelsDir}
}

// ParseFilename splits a <source>_<pk>.mp4 filename into its parts.
// Source accounts may themselves contain underscores, so the pk is
// everything after the last underscore.
func ParseFilename(name string) (source, pk string, err error) {
	base := strings.TrimSuffix(name, ".mp4")
	if base == name {
		return "", "", fmt.Errorf("not an mp4 file: %s", name)
	}
	idx := strings.LastIndex(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return "", "", fmt.Errorf("filename %s does not match <source>_<pk>.mp4", name)
	}
	return base[:idx], base[idx+1:], nil
}

// Reconcile walks the reels directory and the store, adopting orphan
// files and failing records whose files are gone. Returns the number of
// adopted and lost reels.
func (l *Library) Reconcile(ctx context.Context) (adopted, lost int, err error) {
	entries, err := os.ReadDir(l.reelsDir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read reels directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp4") {
			continue
		}

		path := filepath.Join(l.reelsDir, entry.Name())
		if _, err := l.store.GetReelByPath(ctx, path); err == nil {
			continue
		} else if !errors.Is(err, database.ErrNotFound) {
			logging.Warn("Reconcile lookup failed for %s: %v", path, err)
			continue
		}

		source, pk, parseErr := ParseFilename(entry.Name())
		if parseErr != nil {
			logging.Warn("Ignoring unrecognized file in reels directory: %s", entry.Name())
			continue
		}

		info, statErr := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
		if statErr != nil {
			logging.Warn("Failed to stat %s: %v", path, statErr)
			continue
		}

		reel := &database.Reel{
			MediaPK:       pk,
			SourceAccount: source,
			FilePath:      path,
			Size:          info.Size(),
			Status:        database.StatusDownloaded,
		}
		if err := l.store.InsertReel(ctx, reel); err != nil {
			logging.Warn("Failed to adopt %s: %v", path, err)
			continue
		}
		adopted++
		logging.Info("Adopted untracked reel %s", entry.Name())
	}

	// Records pointing at vanished files drop out of rotation
	downloaded, err := l.store.ListReels(ctx, database.StatusDownloaded)
	if err != nil {
		return adopted, lost, fmt.Errorf("failed to list reels: %w", err)
	}
	for _, reel := range downloaded {
		if _, err := os.Stat(reel.FilePath); os.IsNotExist(err) {
			if updateErr := l.store.UpdateReelStatus(ctx, reel.ID, database.StatusFailed); updateErr != nil {
				logging.Warn("Failed to mark lost reel %d: %v", reel.ID, updateErr)
				continue
			}
			lost++
			logging.Warn("Reel %s vanished from disk, removed from rotation", filepath.Base(reel.FilePath))
		}
	}

	l.updateInventory(ctx)

	if adopted > 0 || lost > 0 {
		logging.Info("Library reconciled: %d adopted, %d lost", adopted, lost)
	}
	return adopted, lost, nil
}

// PickPostable returns a random downloaded reel, verifying the file
// still exists before handing it out.
func (l *Library) PickPostable(ctx context.Context) (*database.Reel, error) {
	reels, err := l.store.ListReels(ctx, database.StatusDownloaded)
	if err != nil {
		return nil, fmt.Errorf("failed to list reels: %w", err)
	}

	rand.Shuffle(len(reels), func(i, j int) {
		reels[i], reels[j] = reels[j], reels[i]
	})

	for i := range reels {
		reel := &reels[i]
		if _, err := os.Stat(reel.FilePath); err == nil {
			return reel, nil
		}
		logging.Warn("Skipping reel %d: file missing", reel.ID)
		if updateErr := l.store.UpdateReelStatus(ctx, reel.ID, database.StatusFailed); updateErr != nil {
			logging.Warn("Failed to mark missing reel %d: %v", reel.ID, updateErr)
		}
	}

	return nil, ErrNoneAvailable
}

// Consume removes a reel's file after a posting attempt and records the
// outcome status. The record stays for history either way.
func (l *Library) Consume(ctx context.Context, reel *database.Reel, status database.ReelStatus) error {
	if err := l.store.UpdateReelStatus(ctx, reel.ID, status); err != nil {
		return fmt.Errorf("failed to update reel %d: %w", reel.ID, err)
	}

	if err := os.Remove(reel.FilePath); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to delete reel file %s: %v", reel.FilePath, err)
	} else {
		logging.Debug("Deleted reel file %s", reel.FilePath)
	}

	l.updateInventory(ctx)
	return nil
}

// CountPostable returns how many reels are ready to post.
func (l *Library) CountPostable(ctx context.Context) (int, error) {
	reels, err := l.store.ListReels(ctx, database.StatusDownloaded)
	if err != nil {
		return 0, err
	}
	return len(reels), nil
}

func (l *Library) updateInventory(ctx context.Context) {
	for _, status := range []database.ReelStatus{
		database.StatusDownloaded, database.StatusPosted, database.StatusFailed, database.StatusRejected,
	} {
		reels, err := l.store.ListReels(ctx, status)
		if err != nil {
			return
		}
		metrics.ReelInventory.WithLabelValues(string(status)).Set(float64(len(reels)))
	}
}
