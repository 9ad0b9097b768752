package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"reelpost/internal/logging"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Default source accounts scraped when SOURCE_ACCOUNTS is unset.
var defaultSourceAccounts = []string{
	"terabox_links.hub",
	"divya_links",
	"duniyaa_links_ki",
	"mx_links",
}

// Config holds all application configuration
type Config struct {
	// Instagram credentials
	IGUsername string
	IGPassword string

	// Telegram settings
	TelegramBotToken string
	TelegramChatID   string
	AdminUserID      int64

	// Content sources
	SourceAccounts []string

	// Directories
	DataDir string

	// HTTP
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	// Schedules (cron expressions)
	PostSchedule     string
	DownloadSchedule string
	ScheduleTZ       string

	// Timeouts
	ApprovalTimeout time.Duration
	DemoTimeout     time.Duration

	// Derived paths
	DatabasePath string
	ReelsDir     string
	SessionFile  string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	// Local development convenience; the container sets real env vars
	if err := godotenv.Load(); err == nil {
		logging.Debug("Loaded environment from .env file")
	}

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	igUsername := os.Getenv("IG_USERNAME")
	igPassword := os.Getenv("IG_PASSWORD")
	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID")
	adminIDStr := os.Getenv("ADMIN_USER_ID")

	var missing []string
	for _, v := range []struct{ key, value string }{
		{"IG_USERNAME", igUsername},
		{"IG_PASSWORD", igPassword},
		{"TELEGRAM_BOT_TOKEN", botToken},
		{"TELEGRAM_CHAT_ID", chatID},
		{"ADMIN_USER_ID", adminIDStr},
	} {
		if v.value == "" {
			missing = append(missing, v.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	adminUserID, err := strconv.ParseInt(adminIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_USER_ID must be a numeric Telegram user ID, got %q", adminIDStr)
	}

	dataDir := os.Getenv("RAILWAY_VOLUME_MOUNT_PATH")
	if dataDir == "" {
		dataDir = os.Getenv("DATA_DIR")
	}
	if dataDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory for data storage: %w", err)
		}
		dataDir = cwd
	}

	sourceAccounts := defaultSourceAccounts
	if raw := os.Getenv("SOURCE_ACCOUNTS"); raw != "" {
		sourceAccounts = splitAccounts(raw)
	}

	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", false)
	postSchedule := getEnv("POST_SCHEDULE", "0 8,14,20 * * *")
	downloadSchedule := getEnv("DOWNLOAD_SCHEDULE", "5 0 * * *")
	scheduleTZ := getEnv("SCHEDULE_TZ", "Asia/Kolkata")
	approvalTimeout := getEnvDuration("APPROVAL_TIMEOUT", 30*time.Minute)
	demoTimeout := getEnvDuration("DEMO_TIMEOUT", 5*time.Minute)

	logging.Info("  IG_USERNAME:         %s", igUsername)
	logging.Info("  IG_PASSWORD:         %s", maskSecret(igPassword))
	logging.Info("  TELEGRAM_BOT_TOKEN:  %s", maskSecret(botToken))
	logging.Info("  TELEGRAM_CHAT_ID:    %s", chatID)
	logging.Info("  ADMIN_USER_ID:       %d", adminUserID)
	logging.Info("  SOURCE_ACCOUNTS:     %s", strings.Join(sourceAccounts, ", "))
	logging.Info("  DATA_DIR:            %s", dataDir)
	logging.Info("  PORT:                %s", port)
	logging.Info("  METRICS_PORT:        %s", metricsPort)
	logging.Info("  METRICS_ENABLED:     %v", metricsEnabled)
	logging.Info("  POST_SCHEDULE:       %s", postSchedule)
	logging.Info("  DOWNLOAD_SCHEDULE:   %s", downloadSchedule)
	logging.Info("  SCHEDULE_TZ:         %s", scheduleTZ)
	logging.Info("  APPROVAL_TIMEOUT:    %v", approvalTimeout)
	logging.Info("  DEMO_TIMEOUT:        %v", demoTimeout)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if _, err := time.LoadLocation(scheduleTZ); err != nil {
		logging.Warn("  Invalid SCHEDULE_TZ %q, using UTC", scheduleTZ)
		scheduleTZ = "UTC"
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	dataDir, err = filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	logging.Info("  Data directory (absolute): %s", dataDir)

	config := &Config{
		IGUsername:       igUsername,
		IGPassword:       igPassword,
		TelegramBotToken: botToken,
		TelegramChatID:   chatID,
		AdminUserID:      adminUserID,
		SourceAccounts:   sourceAccounts,
		DataDir:          dataDir,
		Port:             port,
		MetricsPort:      metricsPort,
		MetricsEnabled:   metricsEnabled,
		LogHealthChecks:  logHealthChecks,
		PostSchedule:     postSchedule,
		DownloadSchedule: downloadSchedule,
		ScheduleTZ:       scheduleTZ,
		ApprovalTimeout:  approvalTimeout,
		DemoTimeout:      demoTimeout,
		DatabasePath:     filepath.Join(dataDir, "reelpost.db"),
		ReelsDir:         filepath.Join(dataDir, "reels"),
		SessionFile:      filepath.Join(dataDir, igUsername+"_session.json"),
	}

	if err := ensureDirectory(dataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}

	logging.Debug("  Testing data directory write access...")
	if err := testWriteAccess(dataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable (required for database and downloads): %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	if err := ensureDirectory(config.ReelsDir, "reels"); err != nil {
		return nil, fmt.Errorf("reels directory error: %w", err)
	}
	logging.Info("  [OK] Reels directory ready")

	return config, nil
}

// splitAccounts parses a comma-separated account list, trimming blanks.
func splitAccounts(raw string) []string {
	var accounts []string
	for _, part := range strings.Split(raw, ",") {
		if account := strings.TrimSpace(part); account != "" {
			accounts = append(accounts, account)
		}
	}
	return accounts
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogToolCheck logs availability of the external tools the service shells
// out to. ffmpeg is required for remuxing and cover frames; yt-dlp is
// required for downloads.
func LogToolCheck(ctx context.Context, mediaCheck func(context.Context) error) error {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("EXTERNAL TOOLS")
	logging.Info("------------------------------------------------------------")

	if err := mediaCheck(ctx); err != nil {
		logging.Error("  FFmpeg check failed: %v", err)
		return fmt.Errorf("ffmpeg is required for merged downloads and remuxing: %w", err)
	}
	logging.Info("  [OK] ffmpeg and ffprobe are available")

	if err := checkTool("yt-dlp", "--version"); err != nil {
		logging.Error("  yt-dlp check failed: %v", err)
		return fmt.Errorf("yt-dlp is required for downloads: %w", err)
	}
	logging.Info("  [OK] yt-dlp is available")

	return nil
}

// LogSchedulerInit logs scheduler startup
func LogSchedulerInit(postSchedule, downloadSchedule, tz string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SCHEDULER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Post schedule:     %s", postSchedule)
	logging.Info("  Download schedule: %s", downloadSchedule)
	logging.Info("  Timezone:          %s", tz)
}

// LogSchedulerStarted logs successful scheduler start
func LogSchedulerStarted(nextPost, nextDownload time.Time) {
	logging.Info("  [OK] Scheduler started")
	logging.Info("    Next post:     %s", nextPost.Format(time.RFC1123))
	logging.Info("    Next download: %s", nextDownload.Format(time.RFC1123))
}

// LogBotInit logs Telegram bot startup
func LogBotInit() {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TELEGRAM BOT")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Starting update polling...")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			groupRoutes := groups[group]
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groupRoutes {
				methodPadded := fmt.Sprintf("%-6s", route.Method)
				logging.Debug("    %s %s", methodPadded, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Admin API:     http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the service")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    ____             __   ____             __
   / __ \___  ___  / /  / __ \____  _____/ /_
  / /_/ / _ \/ _ \/ /  / /_/ / __ \/ ___/ __/
 / _, _/  __/  __/ /  / ____/ /_/ (__  ) /_
/_/ |_|\___/\___/_/  /_/    \____/____/\__/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Write access was confirmed, ignore cleanup failure
	}
	return nil
}

func checkTool(name, versionFlag string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  %s path: %s", name, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, versionFlag)
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", name, err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		logging.Debug("  %s version: %s", name, strings.TrimSpace(lines[0]))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
