package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reelpost/internal/approval"
	"reelpost/internal/database"
	"reelpost/internal/downloader"
	"reelpost/internal/ffmpeg"
	"reelpost/internal/instagram"
	"reelpost/internal/library"
	"reelpost/internal/logging"
	"reelpost/internal/telegram"
)

// uploader is the Instagram surface the bot posts through.
type uploader interface {
	Login(ctx context.Context) error
	UploadClip(ctx context.Context, path, caption, coverPath string) (string, error)
	Comment(ctx context.Context, mediaID, text string) error
	Username() string
}

// messenger is the Telegram surface the bot notifies through.
type messenger interface {
	SendMessage(ctx context.Context, text string) (*telegram.Message, error)
	SendMessageWithKeyboard(ctx context.Context, text string, keyboard *telegram.InlineKeyboard) (*telegram.Message, error)
	SendVideo(ctx context.Context, path, caption string, keyboard *telegram.InlineKeyboard) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, queryID, text string) error
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, keyboard *telegram.InlineKeyboard) error
}

// reelLibrary picks and retires reels.
type reelLibrary interface {
	PickPostable(ctx context.Context) (*database.Reel, error)
	Consume(ctx context.Context, reel *database.Reel, status database.ReelStatus) error
	CountPostable(ctx context.Context) (int, error)
}

// batchDownloader runs download batches.
type batchDownloader interface {
	RunBatch(ctx context.Context) (*downloader.Result, error)
}

// mediaProcessor prepares files before upload.
type mediaProcessor interface {
	FastStart(ctx context.Context, path string) error
	CoverFrame(ctx context.Context, videoPath, outPath string) error
}

// postRecorder persists posting history and job run markers.
// *database.Database satisfies it.
type postRecorder interface {
	RecordPost(ctx context.Context, post *database.Post) error
	SetMetadata(ctx context.Context, key, value string) error
}

// Options wires the bot's collaborators.
type Options struct {
	Instagram  uploader
	Telegram   messenger
	Library    reelLibrary
	Downloader batchDownloader
	FFmpeg     mediaProcessor
	Broker     *approval.Broker
	Store      postRecorder

	ApprovalTimeout time.Duration
	DemoTimeout     time.Duration
}

// Bot runs the repost pipeline.
type Bot struct {
	instagram  uploader
	telegram   messenger
	library    reelLibrary
	downloader batchDownloader
	ffmpeg     mediaProcessor
	broker     *approval.Broker
	store      postRecorder

	approvalTimeout time.Duration
	demoTimeout     time.Duration
}

// New creates the orchestrator.
func New(opts Options) *Bot {
	return &Bot{
		instagram:       opts.Instagram,
		telegram:        opts.Telegram,
		library:         opts.Library,
		downloader:      opts.Downloader,
		ffmpeg:          opts.FFmpeg,
		broker:          opts.Broker,
		store:           opts.Store,
		approvalTimeout: opts.ApprovalTimeout,
		demoTimeout:     opts.DemoTimeout,
	}
}

// creditCaption builds the repost caption crediting the source account.
func creditCaption(sourceAccount string) string {
	return fmt.Sprintf("Credits to @%s 🔥\nFollow for more!", sourceAccount)
}

// creditComment builds the comment left on the source reel.
func creditComment(posterUsername string) string {
	return fmt.Sprintf("Reposted with credits on @%s 🔥", posterUsername)
}

// approvalKeyboard builds the two-button decision keyboard whose
// callback data routes back through HandleCallback.
func approvalKeyboard(kind string, reelID int64) *telegram.InlineKeyboard {
	return &telegram.InlineKeyboard{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "✅ Approve", CallbackData: callbackData("approve", kind, reelID)},
			{Text: "❌ Reject", CallbackData: callbackData("reject", kind, reelID)},
		}},
	}
}

func callbackData(decision, kind string, reelID int64) string {
	return fmt.Sprintf("%s:%s:%d", decision, kind, reelID)
}

// parseCallback splits "<decision>:<kind>:<reelID>" callback data.
func parseCallback(data string) (decision approval.Decision, kind string, reelID int64, err error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("malformed callback data: %q", data)
	}

	switch parts[0] {
	case "approve":
		decision = approval.Approved
	case "reject":
		decision = approval.Rejected
	default:
		return "", "", 0, fmt.Errorf("unknown decision %q", parts[0])
	}

	reelID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("bad reel id in callback data %q", data)
	}
	return decision, parts[1], reelID, nil
}

// HandleCallback resolves a pending approval from an admin button press.
// Registered as the poller's callback handler.
func (b *Bot) HandleCallback(ctx context.Context, query *telegram.CallbackQuery) {
	decision, kind, reelID, err := parseCallback(query.Data)
	if err != nil {
		logging.Warn("Ignoring callback: %v", err)
		if ackErr := b.telegram.AnswerCallbackQuery(ctx, query.ID, ""); ackErr != nil {
			logging.Debug("Failed to answer callback: %v", ackErr)
		}
		return
	}

	resolved := b.broker.Resolve(kind, reelID, decision, query.From.ID)

	toast := "Decision recorded"
	if !resolved {
		toast = "This request already expired"
	}
	if err := b.telegram.AnswerCallbackQuery(ctx, query.ID, toast); err != nil {
		logging.Debug("Failed to answer callback: %v", err)
	}

	// Clear the keyboard so the buttons cannot be pressed twice
	if resolved && query.Message != nil {
		if err := b.telegram.EditMessageReplyMarkup(ctx, query.Message.Chat.ID, query.Message.MessageID, nil); err != nil {
			logging.Debug("Failed to clear keyboard: %v", err)
		}
	}
}

// RunPostSlot executes one scheduled posting slot: pick a reel, ask the
// admin, and post on approval. Registered as the post cron job.
func (b *Bot) RunPostSlot(ctx context.Context) error {
	err := b.postWithApproval(ctx, approval.KindPost)
	b.markRun(ctx, database.MetaLastPostRun)
	return err
}

// RunDownload executes the nightly download batch and reports the
// outcome to the admin chat. Registered as the download cron job.
func (b *Bot) RunDownload(ctx context.Context) error {
	// Sessions go stale overnight, refresh before hitting the feed
	if err := b.instagram.Login(ctx); err != nil {
		b.notify(ctx, fmt.Sprintf("⚠️ Instagram re-login failed: %s", err))
		return fmt.Errorf("re-login failed: %w", err)
	}

	result, err := b.downloader.RunBatch(ctx)
	b.markRun(ctx, database.MetaLastDownloadRun)
	if err != nil {
		b.notify(ctx, fmt.Sprintf("⚠️ Download batch failed: %s", err))
		return err
	}

	remaining, countErr := b.library.CountPostable(ctx)
	if countErr != nil {
		logging.Warn("Failed to count postable reels: %v", countErr)
	}

	b.notify(ctx, fmt.Sprintf(
		"📥 <b>Download batch complete</b>\nDownloaded: %d\nSkipped: %d\nFailed: %d\nReady to post: %d",
		result.Downloaded, result.Skipped, result.Failed, remaining))
	return nil
}

// OfferDemo asks the admin whether to run a demo posting cycle. Called
// once at startup; declining or ignoring the offer is not an error.
func (b *Bot) OfferDemo(ctx context.Context) {
	keyboard := approvalKeyboard(approval.KindDemoStart, 0)
	if _, err := b.telegram.SendMessageWithKeyboard(ctx,
		"🤖 <b>Bot started.</b>\nRun a demo posting cycle now?", keyboard); err != nil {
		logging.Warn("Failed to send demo offer: %v", err)
		return
	}

	decision, err := b.broker.Wait(ctx, approval.KindDemoStart, 0, b.demoTimeout)
	if err != nil {
		if errors.Is(err, approval.ErrTimeout) {
			logging.Info("Demo offer expired without an answer")
		}
		return
	}
	if decision != approval.Approved {
		logging.Info("Demo declined")
		return
	}

	logging.Info("Running demo posting cycle")
	if err := b.postWithApproval(ctx, approval.KindDemoPost); err != nil {
		logging.Warn("Demo cycle failed: %v", err)
	}
}

// postWithApproval runs the full pick-preview-approve-post flow.
func (b *Bot) postWithApproval(ctx context.Context, kind string) error {
	reel, err := b.library.PickPostable(ctx)
	if errors.Is(err, library.ErrNoneAvailable) {
		// Empty inventory: refill now instead of losing the slot
		logging.Info("No reels in inventory, running a refill download")
		if _, dlErr := b.downloader.RunBatch(ctx); dlErr != nil {
			b.notify(ctx, fmt.Sprintf("⚠️ Refill download failed: %s", dlErr))
			return fmt.Errorf("refill download failed: %w", dlErr)
		}
		reel, err = b.library.PickPostable(ctx)
	}
	if err != nil {
		if errors.Is(err, library.ErrNoneAvailable) {
			logging.Warn("Posting slot skipped: no reels available")
			b.notify(ctx, "📭 Posting slot skipped: no reels available. Waiting for the next download batch.")
			return nil
		}
		return fmt.Errorf("failed to pick reel: %w", err)
	}

	// Remux so playback starts immediately; non-fatal if it fails
	if err := b.ffmpeg.FastStart(ctx, reel.FilePath); err != nil {
		logging.Warn("FastStart failed for %s: %v", reel.FilePath, err)
	}

	coverPath := strings.TrimSuffix(reel.FilePath, filepath.Ext(reel.FilePath)) + "_cover.jpg"
	if err := b.ffmpeg.CoverFrame(ctx, reel.FilePath, coverPath); err != nil {
		logging.Warn("Cover frame failed for %s: %v", reel.FilePath, err)
		coverPath = ""
	} else {
		// The cover only lives for this flow; a new one is cut next slot
		defer func() {
			if err := os.Remove(coverPath); err != nil && !os.IsNotExist(err) {
				logging.Debug("Failed to remove cover frame %s: %v", coverPath, err)
			}
		}()
	}

	caption := creditCaption(reel.SourceAccount)
	preview := fmt.Sprintf("🎬 <b>Ready to post</b>\nSource: @%s\nCaption:\n<code>%s</code>",
		reel.SourceAccount, caption)

	if _, err := b.telegram.SendVideo(ctx, reel.FilePath, preview, approvalKeyboard(kind, reel.ID)); err != nil {
		return fmt.Errorf("failed to send preview: %w", err)
	}

	// Demo cycles answer on a short fuse, scheduled slots wait longer
	timeout := b.approvalTimeout
	if kind == approval.KindDemoPost {
		timeout = b.demoTimeout
	}

	decision, err := b.broker.Wait(ctx, kind, reel.ID, timeout)
	if err != nil {
		if errors.Is(err, approval.ErrTimeout) {
			b.notify(ctx, "⏰ Approval timed out, reel stays queued for the next slot.")
			return nil
		}
		return err
	}

	if decision != approval.Approved {
		logging.Info("Reel %d rejected, removing from rotation", reel.ID)
		if err := b.library.Consume(ctx, reel, database.StatusRejected); err != nil {
			logging.Warn("Failed to retire rejected reel: %v", err)
		}
		b.notify(ctx, "🗑 Rejected. The reel was removed from rotation.")
		return nil
	}

	return b.post(ctx, reel, caption, coverPath)
}

// post uploads an approved reel, credits the source, and records it.
func (b *Bot) post(ctx context.Context, reel *database.Reel, caption, coverPath string) error {
	mediaPK, err := b.instagram.UploadClip(ctx, reel.FilePath, caption, coverPath)
	if err != nil {
		if consumeErr := b.library.Consume(ctx, reel, database.StatusFailed); consumeErr != nil {
			logging.Warn("Failed to retire failed reel: %v", consumeErr)
		}
		b.notify(ctx, fmt.Sprintf("⚠️ Upload failed: %s", err))
		return fmt.Errorf("upload failed: %w", err)
	}

	// Credit comment on the source reel; losing it is not fatal
	if reel.MediaPK != "" {
		if err := b.instagram.Comment(ctx, reel.MediaPK, creditComment(b.instagram.Username())); err != nil {
			logging.Warn("Credit comment failed: %v", err)
		}
	}

	post := &database.Post{
		ReelID:        reel.ID,
		MediaPK:       mediaPK,
		SourceAccount: reel.SourceAccount,
		Caption:       caption,
	}
	if err := b.store.RecordPost(ctx, post); err != nil {
		logging.Warn("Failed to record post: %v", err)
	}

	if err := b.library.Consume(ctx, reel, database.StatusPosted); err != nil {
		logging.Warn("Failed to retire posted reel: %v", err)
	}

	b.notify(ctx, fmt.Sprintf("✅ <b>Posted!</b>\nSource: @%s\nNew media: %s", reel.SourceAccount, mediaPK))
	logging.Info("Posted reel %d from @%s as media %s", reel.ID, reel.SourceAccount, mediaPK)
	return nil
}

// AnnounceOnline sends the startup notice to the admin chat.
func (b *Bot) AnnounceOnline(ctx context.Context) {
	b.notify(ctx, fmt.Sprintf("🟢 <b>Bot Online</b>\nLogged in as @%s", b.instagram.Username()))
}

// AnnounceShutdown sends the shutdown notice to the admin chat.
func (b *Bot) AnnounceShutdown(ctx context.Context) {
	b.notify(ctx, "🔴 <b>Bot shutting down</b>")
}

// markRun records when a scheduled job last ran, surfaced by the stats
// endpoint.
func (b *Bot) markRun(ctx context.Context, key string) {
	if err := b.store.SetMetadata(ctx, key, time.Now().UTC().Format(time.RFC3339)); err != nil {
		logging.Warn("Failed to record %s: %v", key, err)
	}
}

func (b *Bot) notify(ctx context.Context, text string) {
	if _, err := b.telegram.SendMessage(ctx, text); err != nil {
		logging.Warn("Failed to send Telegram notice: %v", err)
	}
}

// Interface checks against the real collaborators.
var (
	_ uploader        = (*instagram.Client)(nil)
	_ messenger       = (*telegram.Client)(nil)
	_ reelLibrary     = (*library.Library)(nil)
	_ batchDownloader = (*downloader.Downloader)(nil)
	_ mediaProcessor  = (*ffmpeg.Processor)(nil)
	_ postRecorder    = (*database.Database)(nil)
)
