package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// --- Reel inventory by status ---
	for _, status := range []string{"downloaded", "pending", "posted", "rejected", "failed"} {
		ReelInventory.WithLabelValues(status)
	}

	// --- Download pipeline ---
	for _, status := range []string{"success", "error", "timeout", "skipped"} {
		DownloadsTotal.WithLabelValues(status)
	}
	for _, status := range []string{"success", "error"} {
		DownloadBatchesTotal.WithLabelValues(status)
		UploadsTotal.WithLabelValues(status)
		CreditCommentsTotal.WithLabelValues(status)
	}

	// --- Approval decisions (kind x decision) ---
	for _, kind := range []string{"demo-start", "demo-post", "post"} {
		for _, decision := range []string{"approved", "rejected", "timeout"} {
			ApprovalsTotal.WithLabelValues(kind, decision)
		}
		ApprovalLatency.WithLabelValues(kind)
	}

	// --- Telegram API methods ---
	for _, method := range []string{"sendMessage", "sendVideo", "getUpdates",
		"answerCallbackQuery", "editMessageReplyMarkup"} {
		TelegramRequestsTotal.WithLabelValues(method, "success")
		TelegramRequestsTotal.WithLabelValues(method, "error")
	}

	// --- Instagram operations ---
	for _, method := range []string{"session", "credentials"} {
		InstagramLoginsTotal.WithLabelValues(method, "success")
		InstagramLoginsTotal.WithLabelValues(method, "error")
	}
	for _, op := range []string{"login", "current_user", "user_info", "user_feed",
		"comment", "configure", "upload"} {
		InstagramRequestsTotal.WithLabelValues(op, "success")
		InstagramRequestsTotal.WithLabelValues(op, "error")
	}

	// --- Scheduled jobs ---
	for _, job := range []string{"post", "download"} {
		JobRunsTotal.WithLabelValues(job, "success")
		JobRunsTotal.WithLabelValues(job, "error")
		JobRunsTotal.WithLabelValues(job, "skipped")
		JobLastRunTimestamp.WithLabelValues(job)
		JobDuration.WithLabelValues(job)
	}

	// --- FFmpeg operations ---
	for _, op := range []string{"probe", "faststart", "cover_frame"} {
		FFmpegInvocationsTotal.WithLabelValues(op, "success")
		FFmpegInvocationsTotal.WithLabelValues(op, "error")
		FFmpegDuration.WithLabelValues(op)
	}

	// --- Auth ---
	AuthAttemptsTotal.WithLabelValues("success")
	AuthAttemptsTotal.WithLabelValues("failure")

	// --- DB query operations ---
	for _, op := range []string{"initialize_schema", "insert_reel", "update_reel_status",
		"get_reel", "list_reels", "delete_reel", "record_post", "list_posts",
		"record_approval", "list_approvals", "get_metadata", "set_metadata",
		"create_user", "update_password", "validate_password", "create_session", "validate_session",
		"delete_session", "clean_sessions", "calculate_stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	// --- Filesystem retries ---
	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}
}
