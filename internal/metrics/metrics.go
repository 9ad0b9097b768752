package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelpost_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelpost_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelpost_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelpost_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Download pipeline metrics
var (
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_downloads_total",
			Help: "Total number of reel download attempts",
		},
		[]string{"status"}, // "success", "error", "timeout", "skipped"
	)

	DownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelpost_download_duration_seconds",
			Help:    "Duration of individual reel downloads in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 180},
		},
	)

	DownloadBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_download_batches_total",
			Help: "Total number of download batch runs",
		},
		[]string{"status"}, // "success", "error"
	)

	ReelInventory = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelpost_reels_inventory",
			Help: "Number of reels tracked in the store by status",
		},
		[]string{"status"}, // "downloaded", "pending", "posted", "rejected", "failed"
	)
)

// Upload metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_uploads_total",
			Help: "Total number of reel upload attempts",
		},
		[]string{"status"}, // "success", "error"
	)

	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelpost_upload_duration_seconds",
			Help:    "Duration of reel uploads in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120},
		},
	)

	CreditCommentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_credit_comments_total",
			Help: "Total number of credit comments left on source reels",
		},
		[]string{"status"}, // "success", "error"
	)
)

// Approval workflow metrics
var (
	ApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_approvals_total",
			Help: "Total number of approval decisions",
		},
		[]string{"kind", "decision"}, // kind: "demo-start", "demo-post", "post"
	)

	ApprovalLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelpost_approval_latency_seconds",
			Help:    "Time between asking for a decision and receiving it",
			Buckets: []float64{5, 15, 60, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	ApprovalsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelpost_approvals_pending",
			Help: "Number of decisions currently awaiting an admin response",
		},
	)
)

// Telegram metrics
var (
	TelegramRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_telegram_requests_total",
			Help: "Total number of Telegram Bot API requests",
		},
		[]string{"method", "status"}, // method: "sendMessage", "sendVideo", ...
	)

	TelegramPollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelpost_telegram_poll_errors_total",
			Help: "Total number of getUpdates polling errors",
		},
	)

	TelegramUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelpost_telegram_updates_total",
			Help: "Total number of Telegram updates processed",
		},
	)
)

// Instagram metrics
var (
	InstagramLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_instagram_logins_total",
			Help: "Total number of Instagram login attempts",
		},
		[]string{"method", "status"}, // method: "session", "credentials"
	)

	InstagramRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_instagram_requests_total",
			Help: "Total number of Instagram API requests",
		},
		[]string{"operation", "status"},
	)
)

// Scheduler metrics
var (
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_job_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "status"}, // job: "post", "download"
	)

	JobLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelpost_job_last_run_timestamp",
			Help: "Unix timestamp of the last run of each scheduled job",
		},
		[]string{"job"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelpost_job_duration_seconds",
			Help:    "Duration of scheduled job runs in seconds",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
		},
		[]string{"job"},
	)
)

// FFmpeg metrics
var (
	FFmpegInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_ffmpeg_invocations_total",
			Help: "Total number of ffmpeg/ffprobe invocations",
		},
		[]string{"operation", "status"}, // operation: "probe", "faststart", "cover"
	)

	FFmpegDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelpost_ffmpeg_duration_seconds",
			Help:    "Duration of ffmpeg/ffprobe invocations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"operation"},
	)
)

// Auth metrics
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_auth_attempts_total",
			Help: "Total number of admin API authentication attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelpost_sessions_active",
			Help: "Number of active admin API sessions",
		},
	)
)

// Filesystem metrics (mounted data volume resilience)
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_fs_retry_attempts_total",
			Help: "Total number of filesystem operation retries",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpost_fs_retry_failures_total",
			Help: "Total number of filesystem operations that failed after retries",
		},
		[]string{"operation"},
	)
)
