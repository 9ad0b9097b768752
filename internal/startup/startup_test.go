package startup

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IG_USERNAME", "testaccount")
	t.Setenv("IG_PASSWORD", "testpassword")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:ABC-DEF")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234567890")
	t.Setenv("ADMIN_USER_ID", "987654321")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("RAILWAY_VOLUME_MOUNT_PATH", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.Port != "8080" {
		t.Errorf("Port = %q, want 8080", config.Port)
	}
	if config.MetricsPort != "9090" {
		t.Errorf("MetricsPort = %q, want 9090", config.MetricsPort)
	}
	if config.PostSchedule != "0 8,14,20 * * *" {
		t.Errorf("PostSchedule = %q", config.PostSchedule)
	}
	if config.DownloadSchedule != "5 0 * * *" {
		t.Errorf("DownloadSchedule = %q", config.DownloadSchedule)
	}
	if config.ScheduleTZ != "Asia/Kolkata" {
		t.Errorf("ScheduleTZ = %q, want Asia/Kolkata", config.ScheduleTZ)
	}
	if config.ApprovalTimeout != 30*time.Minute {
		t.Errorf("ApprovalTimeout = %v, want 30m", config.ApprovalTimeout)
	}
	if config.AdminUserID != 987654321 {
		t.Errorf("AdminUserID = %d", config.AdminUserID)
	}
	if len(config.SourceAccounts) != 4 {
		t.Errorf("SourceAccounts = %v, want 4 defaults", config.SourceAccounts)
	}
	if !strings.HasSuffix(config.DatabasePath, "reelpost.db") {
		t.Errorf("DatabasePath = %q", config.DatabasePath)
	}
	if !strings.HasSuffix(config.ReelsDir, "reels") {
		t.Errorf("ReelsDir = %q", config.ReelsDir)
	}
	if !strings.HasSuffix(config.SessionFile, "testaccount_session.json") {
		t.Errorf("SessionFile = %q", config.SessionFile)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IG_USERNAME", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() should fail with missing credentials")
	}
	if !strings.Contains(err.Error(), "IG_USERNAME") {
		t.Errorf("Error %q should name IG_USERNAME", err)
	}
	if !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") {
		t.Errorf("Error %q should name TELEGRAM_BOT_TOKEN", err)
	}
}

func TestLoadConfigBadAdminID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_USER_ID", "not-a-number")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() should reject non-numeric ADMIN_USER_ID")
	}
}

func TestLoadConfigCustomSources(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOURCE_ACCOUNTS", "one, two ,three,, ")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	want := []string{"one", "two", "three"}
	if len(config.SourceAccounts) != len(want) {
		t.Fatalf("SourceAccounts = %v, want %v", config.SourceAccounts, want)
	}
	for i, account := range want {
		if config.SourceAccounts[i] != account {
			t.Errorf("SourceAccounts[%d] = %q, want %q", i, config.SourceAccounts[i], account)
		}
	}
}

func TestLoadConfigRailwayVolume(t *testing.T) {
	setRequiredEnv(t)
	volume := t.TempDir()
	t.Setenv("RAILWAY_VOLUME_MOUNT_PATH", volume)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if config.DataDir != volume {
		t.Errorf("DataDir = %q, want %q (volume mount takes precedence)", config.DataDir, volume)
	}
}

func TestLoadConfigDataDirDefaultsToCwd(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATA_DIR", "")
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldwd); err != nil {
			t.Fatalf("Chdir back: %v", err)
		}
	})

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if config.DataDir != cwd {
		t.Errorf("DataDir = %q, want working directory %q", config.DataDir, cwd)
	}
}

func TestLoadConfigInvalidTimezone(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SCHEDULE_TZ", "Not/AZone")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if config.ScheduleTZ != "UTC" {
		t.Errorf("ScheduleTZ = %q, want UTC fallback", config.ScheduleTZ)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "****"},
		{"abc", "****"},
		{"abcdef", "ab**ef"},
		{"supersecretvalue", "su************ue"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "45m")
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 45*time.Minute {
		t.Errorf("getEnvDuration = %v, want 45m", got)
	}

	t.Setenv("TEST_DURATION", "garbage")
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration with invalid value = %v, want default", got)
	}
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	if info.Version == "" {
		t.Error("Version should not be empty")
	}
	if info.GoVersion == "" {
		t.Error("GoVersion should not be empty")
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/reels", "api/reels"},
		{"/api/reels/{id}", "api/reels"},
		{"/health", "health"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
