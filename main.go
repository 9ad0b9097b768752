package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelpost/internal/approval"
	"reelpost/internal/bot"
	"reelpost/internal/database"
	"reelpost/internal/downloader"
	"reelpost/internal/ffmpeg"
	"reelpost/internal/handlers"
	"reelpost/internal/instagram"
	"reelpost/internal/library"
	"reelpost/internal/logging"
	"reelpost/internal/memory"
	"reelpost/internal/metrics"
	"reelpost/internal/middleware"
	"reelpost/internal/scheduler"
	"reelpost/internal/startup"
	"reelpost/internal/telegram"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	memory.ConfigureFromEnv()
	metrics.InitializeMetrics()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(rootCtx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn("Failed to close database: %v", err)
		}
	}()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Clean up expired sessions periodically
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				db.CleanExpiredSessions()
			}
		}
	}()

	collector := metrics.NewCollector(db, 30*time.Second)
	collector.Start()
	defer collector.Stop()

	ffproc := ffmpeg.New()
	if err := startup.LogToolCheck(rootCtx, ffproc.Check); err != nil {
		startup.LogFatal("Dependency check failed: %v", err)
	}

	tg := telegram.New(telegram.Options{
		Token:  config.TelegramBotToken,
		ChatID: config.TelegramChatID,
	})

	ig := instagram.New(instagram.Options{
		Username:    config.IGUsername,
		Password:    config.IGPassword,
		SessionFile: config.SessionFile,
		Store:       db,
	})
	if err := ig.Login(rootCtx); err != nil {
		if _, sendErr := tg.SendMessage(rootCtx, "🔴 <b>Login failed</b>\nThe bot could not sign in to Instagram and is exiting."); sendErr != nil {
			logging.Warn("Failed to send login failure notice: %v", sendErr)
		}
		startup.LogFatal("Instagram login failed: %v", err)
	}

	broker := approval.New(db)
	dl := downloader.New(ig, db, ffproc, config.ReelsDir, config.SourceAccounts)

	lib := library.New(db, config.ReelsDir)
	if adopted, lost, err := lib.Reconcile(rootCtx); err != nil {
		logging.Warn("Reel library reconcile failed: %v", err)
	} else if adopted > 0 || lost > 0 {
		logging.Info("Reel library reconciled: %d adopted, %d lost", adopted, lost)
	}

	startup.LogBotInit()
	b := bot.New(bot.Options{
		Instagram:       ig,
		Telegram:        tg,
		Library:         lib,
		Downloader:      dl,
		FFmpeg:          ffproc,
		Broker:          broker,
		Store:           db,
		ApprovalTimeout: config.ApprovalTimeout,
		DemoTimeout:     config.DemoTimeout,
	})

	poller := telegram.NewPoller(tg, db, config.AdminUserID, b.HandleCallback)
	poller.Start(rootCtx)

	// Scheduler
	startup.LogSchedulerInit(config.PostSchedule, config.DownloadSchedule, config.ScheduleTZ)
	sched, err := scheduler.New(config.ScheduleTZ)
	if err != nil {
		startup.LogFatal("Failed to initialize scheduler: %v", err)
	}
	if err := sched.Add(scheduler.JobPost, config.PostSchedule, b.RunPostSlot); err != nil {
		startup.LogFatal("Invalid post schedule %q: %v", config.PostSchedule, err)
	}
	if err := sched.Add(scheduler.JobDownload, config.DownloadSchedule, b.RunDownload); err != nil {
		startup.LogFatal("Invalid download schedule %q: %v", config.DownloadSchedule, err)
	}
	sched.Start()
	startup.LogSchedulerStarted(sched.Next(scheduler.JobPost), sched.Next(scheduler.JobDownload))

	// Initialize handlers and router
	h := handlers.New(db, lib, broker, b, config)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	authedRouter := h.AuthMiddleware(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(authedRouter)

	meteredHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(loggedHandler)

	handler := middleware.Compression(middleware.DefaultCompressionConfig())(meteredHandler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:         ":" + config.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(rootCancel, srv, metricsSrv, b, poller, sched, collector)

	h.MarkReady()
	go func() {
		b.AnnounceOnline(rootCtx)
		b.OfferDemo(rootCtx)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes (no auth required)
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/setup-required", h.CheckSetupRequired).Methods("GET")
	auth.HandleFunc("/setup", h.Setup).Methods("POST")
	auth.HandleFunc("/login", h.Login).Methods("POST")
	auth.HandleFunc("/logout", h.Logout).Methods("POST")
	auth.HandleFunc("/check", h.CheckAuth).Methods("GET")
	auth.HandleFunc("/password", h.ChangePassword).Methods("POST")

	// Protected API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/reels", h.ListReels).Methods("GET")
	api.HandleFunc("/reels/{id:[0-9]+}", h.GetReel).Methods("GET")
	api.HandleFunc("/reels/{id:[0-9]+}", h.DeleteReel).Methods("DELETE")
	api.HandleFunc("/reels/{id:[0-9]+}/video", h.StreamReelVideo).Methods("GET")
	api.HandleFunc("/posts", h.ListPosts).Methods("GET")
	api.HandleFunc("/approvals", h.ListApprovals).Methods("GET")
	api.HandleFunc("/jobs/download", h.TriggerDownload).Methods("POST")
	api.HandleFunc("/jobs/post", h.TriggerPost).Methods("POST")

	return r
}

func handleShutdown(cancel context.CancelFunc, srv, metricsSrv *http.Server, b *bot.Bot, poller *telegram.Poller, sched *scheduler.Scheduler, collector *metrics.Collector) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Best-effort notice before anything stops
	b.AnnounceShutdown(ctx)

	startup.LogShutdownStep("Stopping Telegram poller")
	poller.Stop()
	startup.LogShutdownStepComplete("Telegram poller stopped")

	startup.LogShutdownStep("Stopping scheduler")
	sched.Stop(ctx)
	startup.LogShutdownStepComplete("Scheduler stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	collector.Stop()
	cancel()

	startup.LogShutdownComplete()
}
