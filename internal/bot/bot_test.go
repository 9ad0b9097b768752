package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reelpost/internal/approval"
	"reelpost/internal/database"
	"reelpost/internal/downloader"
	"reelpost/internal/library"
	"reelpost/internal/telegram"
)

// --- fakes ---

type fakeUploader struct {
	mu        sync.Mutex
	uploads   []string
	captions  []string
	comments  []string
	logins    int
	uploadErr error
	loginErr  error
}

func (f *fakeUploader) UploadClip(_ context.Context, path, caption, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, path)
	f.captions = append(f.captions, caption)
	return "newpk123", nil
}

func (f *fakeUploader) Comment(_ context.Context, mediaID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, mediaID+"|"+text)
	return nil
}

func (f *fakeUploader) Username() string { return "reposter" }

func (f *fakeUploader) Login(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return f.loginErr
}

type fakeMessenger struct {
	mu       sync.Mutex
	messages []string
	videos   []string
	answered []string
	cleared  int
}

func (f *fakeMessenger) SendMessage(_ context.Context, text string) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return &telegram.Message{MessageID: int64(len(f.messages))}, nil
}

func (f *fakeMessenger) SendMessageWithKeyboard(ctx context.Context, text string, _ *telegram.InlineKeyboard) (*telegram.Message, error) {
	return f.SendMessage(ctx, text)
}

func (f *fakeMessenger) SendVideo(_ context.Context, path, _ string, _ *telegram.InlineKeyboard) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos = append(f.videos, path)
	return &telegram.Message{MessageID: 100}, nil
}

func (f *fakeMessenger) AnswerCallbackQuery(_ context.Context, queryID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, queryID)
	return nil
}

func (f *fakeMessenger) EditMessageReplyMarkup(_ context.Context, _, _ int64, _ *telegram.InlineKeyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeMessenger) lastMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

type fakeLibrary struct {
	mu       sync.Mutex
	reel     *database.Reel
	consumed map[int64]database.ReelStatus
	count    int
}

func (f *fakeLibrary) PickPostable(_ context.Context) (*database.Reel, error) {
	if f.reel == nil {
		return nil, library.ErrNoneAvailable
	}
	return f.reel, nil
}

func (f *fakeLibrary) Consume(_ context.Context, reel *database.Reel, status database.ReelStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumed == nil {
		f.consumed = make(map[int64]database.ReelStatus)
	}
	f.consumed[reel.ID] = status
	return nil
}

func (f *fakeLibrary) CountPostable(_ context.Context) (int, error) { return f.count, nil }

type fakeDownloader struct {
	result *downloader.Result
	err    error
	onRun  func()
}

func (f *fakeDownloader) RunBatch(_ context.Context) (*downloader.Result, error) {
	if f.onRun != nil {
		f.onRun()
	}
	return f.result, f.err
}

type fakeProcessor struct{}

func (fakeProcessor) FastStart(_ context.Context, _ string) error     { return nil }
func (fakeProcessor) CoverFrame(_ context.Context, _, _ string) error { return errors.New("no ffmpeg") }

// coverProcessor writes a real cover file like the ffmpeg wrapper would.
type coverProcessor struct{}

func (coverProcessor) FastStart(_ context.Context, _ string) error { return nil }

func (coverProcessor) CoverFrame(_ context.Context, _, outPath string) error {
	return os.WriteFile(outPath, []byte("jpeg bytes"), 0o644)
}

type fakeRecorder struct {
	mu       sync.Mutex
	posts    []*database.Post
	metadata map[string]string
}

func (f *fakeRecorder) RecordPost(_ context.Context, post *database.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
	return nil
}

func (f *fakeRecorder) SetMetadata(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metadata == nil {
		f.metadata = make(map[string]string)
	}
	f.metadata[key] = value
	return nil
}

func testReel() *database.Reel {
	return &database.Reel{
		ID:            7,
		MediaPK:       "src-pk-1",
		SourceAccount: "divya_links",
		FilePath:      "/data/reels/divya_links_1.mp4",
		Status:        database.StatusDownloaded,
	}
}

func newTestBot(lib *fakeLibrary, dl *fakeDownloader) (*Bot, *fakeUploader, *fakeMessenger, *fakeRecorder) {
	ig := &fakeUploader{}
	tg := &fakeMessenger{}
	rec := &fakeRecorder{}
	b := New(Options{
		Instagram:       ig,
		Telegram:        tg,
		Library:         lib,
		Downloader:      dl,
		FFmpeg:          fakeProcessor{},
		Broker:          approval.New(nil),
		Store:           rec,
		ApprovalTimeout: 2 * time.Second,
		DemoTimeout:     50 * time.Millisecond,
	})
	return b, ig, tg, rec
}

// --- tests ---

func TestParseCallback(t *testing.T) {
	decision, kind, reelID, err := parseCallback("approve:post:42")
	if err != nil {
		t.Fatalf("parseCallback() failed: %v", err)
	}
	if decision != approval.Approved || kind != "post" || reelID != 42 {
		t.Errorf("parseCallback() = (%v, %q, %d)", decision, kind, reelID)
	}

	if _, _, _, err := parseCallback("noidea"); err == nil {
		t.Error("parseCallback() should reject malformed data")
	}
	if _, _, _, err := parseCallback("maybe:post:1"); err == nil {
		t.Error("parseCallback() should reject unknown decisions")
	}
	if _, _, _, err := parseCallback("approve:post:NaN"); err == nil {
		t.Error("parseCallback() should reject non-numeric reel ids")
	}
}

func TestCreditCaption(t *testing.T) {
	got := creditCaption("divya_links")
	want := "Credits to @divya_links 🔥\nFollow for more!"
	if got != want {
		t.Errorf("creditCaption() = %q, want %q", got, want)
	}
}

func TestPostSlotApproved(t *testing.T) {
	lib := &fakeLibrary{reel: testReel()}
	b, ig, tg, rec := newTestBot(lib, nil)

	// Approve as soon as the preview lands
	done := make(chan error, 1)
	go func() { done <- b.RunPostSlot(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.broker.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !b.broker.Resolve(approval.KindPost, 7, approval.Approved, 42) {
		t.Fatal("No pending approval to resolve")
	}

	if err := <-done; err != nil {
		t.Fatalf("RunPostSlot() failed: %v", err)
	}

	if len(tg.videos) != 1 {
		t.Errorf("Sent %d preview videos, want 1", len(tg.videos))
	}
	if len(ig.uploads) != 1 {
		t.Fatalf("Uploaded %d clips, want 1", len(ig.uploads))
	}
	if ig.captions[0] != creditCaption("divya_links") {
		t.Errorf("Upload caption = %q", ig.captions[0])
	}
	if len(ig.comments) != 1 || !strings.HasPrefix(ig.comments[0], "src-pk-1|") {
		t.Errorf("Credit comments = %v", ig.comments)
	}
	if len(rec.posts) != 1 || rec.posts[0].MediaPK != "newpk123" {
		t.Errorf("Recorded posts = %+v", rec.posts)
	}
	if lib.consumed[7] != database.StatusPosted {
		t.Errorf("Reel consumed with status %q, want posted", lib.consumed[7])
	}
	if !strings.Contains(tg.lastMessage(), "Posted!") {
		t.Errorf("Last notice = %q, want posted confirmation", tg.lastMessage())
	}
}

func TestPostSlotRejected(t *testing.T) {
	lib := &fakeLibrary{reel: testReel()}
	b, ig, _, _ := newTestBot(lib, nil)

	done := make(chan error, 1)
	go func() { done <- b.RunPostSlot(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.broker.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.broker.Resolve(approval.KindPost, 7, approval.Rejected, 42)

	if err := <-done; err != nil {
		t.Fatalf("RunPostSlot() failed: %v", err)
	}
	if len(ig.uploads) != 0 {
		t.Error("Rejected reel must not be uploaded")
	}
	if lib.consumed[7] != database.StatusRejected {
		t.Errorf("Reel consumed with status %q, want rejected", lib.consumed[7])
	}
}

func TestPostSlotTimeoutKeepsReel(t *testing.T) {
	lib := &fakeLibrary{reel: testReel()}
	b, ig, tg, _ := newTestBot(lib, nil)
	b.approvalTimeout = 30 * time.Millisecond

	if err := b.RunPostSlot(context.Background()); err != nil {
		t.Fatalf("RunPostSlot() failed: %v", err)
	}
	if len(ig.uploads) != 0 {
		t.Error("Timed-out reel must not be uploaded")
	}
	if _, consumed := lib.consumed[7]; consumed {
		t.Error("Timed-out reel must stay in rotation")
	}
	if !strings.Contains(tg.lastMessage(), "timed out") {
		t.Errorf("Last notice = %q, want timeout notice", tg.lastMessage())
	}
}

func TestPostSlotNoReels(t *testing.T) {
	lib := &fakeLibrary{} // empty, and the refill yields nothing either
	dl := &fakeDownloader{result: &downloader.Result{}}
	b, _, tg, _ := newTestBot(lib, dl)

	if err := b.RunPostSlot(context.Background()); err != nil {
		t.Fatalf("RunPostSlot() with empty library should not error: %v", err)
	}
	if !strings.Contains(tg.lastMessage(), "no reels") {
		t.Errorf("Last notice = %q, want empty-library notice", tg.lastMessage())
	}
}

func TestPostSlotRefillsEmptyInventory(t *testing.T) {
	lib := &fakeLibrary{}
	dl := &fakeDownloader{result: &downloader.Result{Downloaded: 1}}
	// The refill batch makes a reel available
	dl.onRun = func() { lib.reel = testReel() }
	b, ig, _, _ := newTestBot(lib, dl)

	done := make(chan error, 1)
	go func() { done <- b.RunPostSlot(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.broker.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.broker.Resolve(approval.KindPost, 7, approval.Approved, 42)

	if err := <-done; err != nil {
		t.Fatalf("RunPostSlot() failed: %v", err)
	}
	if len(ig.uploads) != 1 {
		t.Errorf("Uploads = %d, want 1 after refill", len(ig.uploads))
	}
}

func TestPostSlotRemovesCoverFile(t *testing.T) {
	reel := testReel()
	reel.FilePath = filepath.Join(t.TempDir(), "divya_links_1.mp4")
	lib := &fakeLibrary{reel: reel}
	b, ig, _, _ := newTestBot(lib, nil)
	b.ffmpeg = coverProcessor{}

	coverPath := strings.TrimSuffix(reel.FilePath, ".mp4") + "_cover.jpg"

	done := make(chan error, 1)
	go func() { done <- b.RunPostSlot(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.broker.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.broker.Resolve(approval.KindPost, 7, approval.Approved, 42)

	if err := <-done; err != nil {
		t.Fatalf("RunPostSlot() failed: %v", err)
	}
	if len(ig.uploads) != 1 {
		t.Fatalf("Uploads = %d, want 1", len(ig.uploads))
	}
	if _, err := os.Stat(coverPath); !os.IsNotExist(err) {
		t.Errorf("Cover file %s should be removed after posting", coverPath)
	}
}

func TestDemoPostUsesDemoTimeout(t *testing.T) {
	lib := &fakeLibrary{reel: testReel()}
	b, ig, tg, _ := newTestBot(lib, nil)
	b.approvalTimeout = time.Hour
	b.demoTimeout = 30 * time.Millisecond

	start := time.Now()
	if err := b.postWithApproval(context.Background(), approval.KindDemoPost); err != nil {
		t.Fatalf("postWithApproval() failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Demo approval waited %v, should expire on the demo timeout", elapsed)
	}
	if len(ig.uploads) != 0 {
		t.Error("Unanswered demo must not upload")
	}
	if !strings.Contains(tg.lastMessage(), "timed out") {
		t.Errorf("Last notice = %q, want timeout notice", tg.lastMessage())
	}
}

func TestPostSlotUploadFailure(t *testing.T) {
	lib := &fakeLibrary{reel: testReel()}
	b, ig, _, _ := newTestBot(lib, nil)
	ig.uploadErr = errors.New("instagram said no")

	done := make(chan error, 1)
	go func() { done <- b.RunPostSlot(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.broker.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.broker.Resolve(approval.KindPost, 7, approval.Approved, 42)

	if err := <-done; err == nil {
		t.Fatal("RunPostSlot() should surface upload failure")
	}
	if lib.consumed[7] != database.StatusFailed {
		t.Errorf("Reel consumed with status %q, want failed", lib.consumed[7])
	}
}

func TestRunDownloadNotifies(t *testing.T) {
	lib := &fakeLibrary{count: 12}
	dl := &fakeDownloader{result: &downloader.Result{Downloaded: 4, Skipped: 2, Failed: 1}}
	b, ig, tg, rec := newTestBot(lib, dl)

	if err := b.RunDownload(context.Background()); err != nil {
		t.Fatalf("RunDownload() failed: %v", err)
	}
	if rec.metadata[database.MetaLastDownloadRun] == "" {
		t.Error("Download run time was not recorded")
	}

	notice := tg.lastMessage()
	for _, want := range []string{"Downloaded: 4", "Skipped: 2", "Failed: 1", "Ready to post: 12"} {
		if !strings.Contains(notice, want) {
			t.Errorf("Notice %q missing %q", notice, want)
		}
	}
	if ig.logins != 1 {
		t.Errorf("Logins = %d, want a session refresh before the batch", ig.logins)
	}
}

func TestRunDownloadLoginFailure(t *testing.T) {
	lib := &fakeLibrary{}
	dl := &fakeDownloader{result: &downloader.Result{}}
	b, ig, tg, _ := newTestBot(lib, dl)
	ig.loginErr = errors.New("challenge_required")

	if err := b.RunDownload(context.Background()); err == nil {
		t.Fatal("RunDownload() should surface login failure")
	}
	if !strings.Contains(tg.lastMessage(), "re-login failed") {
		t.Errorf("Last notice = %q, want re-login failure notice", tg.lastMessage())
	}
}

func TestOfferDemoDeclined(t *testing.T) {
	lib := &fakeLibrary{reel: testReel()}
	b, ig, _, _ := newTestBot(lib, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.OfferDemo(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for b.broker.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.broker.Resolve(approval.KindDemoStart, 0, approval.Rejected, 42)

	<-done
	if len(ig.uploads) != 0 {
		t.Error("Declined demo must not post anything")
	}
}

func TestOfferDemoExpires(t *testing.T) {
	lib := &fakeLibrary{reel: testReel()}
	b, ig, _, _ := newTestBot(lib, nil)
	b.demoTimeout = 20 * time.Millisecond

	b.OfferDemo(context.Background())
	if len(ig.uploads) != 0 {
		t.Error("Expired demo offer must not post anything")
	}
}

func TestHandleCallbackResolvesPending(t *testing.T) {
	lib := &fakeLibrary{reel: testReel()}
	b, _, tg, _ := newTestBot(lib, nil)

	done := make(chan error, 1)
	go func() { done <- b.RunPostSlot(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.broker.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	query := &telegram.CallbackQuery{
		ID:   "cb1",
		From: telegram.User{ID: 42},
		Data: callbackData("approve", approval.KindPost, 7),
		Message: &telegram.Message{
			MessageID: 100,
		},
	}
	b.HandleCallback(context.Background(), query)

	if err := <-done; err != nil {
		t.Fatalf("RunPostSlot() failed: %v", err)
	}
	if len(tg.answered) != 1 {
		t.Errorf("Answered %d callbacks, want 1", len(tg.answered))
	}
	if tg.cleared != 1 {
		t.Errorf("Cleared %d keyboards, want 1", tg.cleared)
	}
}

func TestHandleCallbackStale(t *testing.T) {
	lib := &fakeLibrary{}
	b, _, tg, _ := newTestBot(lib, nil)

	query := &telegram.CallbackQuery{
		ID:   "stale",
		From: telegram.User{ID: 42},
		Data: callbackData("approve", approval.KindPost, 999),
	}
	b.HandleCallback(context.Background(), query)

	if len(tg.answered) != 1 {
		t.Error("Stale callback should still be answered")
	}
	if tg.cleared != 0 {
		t.Error("Stale callback should not clear any keyboard")
	}
}
