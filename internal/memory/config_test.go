package memory

import (
	"runtime/debug"
	"testing"
)

func TestConfigureFromEnvNoVariables(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")
	t.Setenv("MEMORY_RATIO", "")

	result := ConfigureFromEnv()

	if result.Configured {
		t.Error("Expected Configured=false with no environment variables")
	}
	if result.Source != "none" {
		t.Errorf("Expected Source=none, got %q", result.Source)
	}
}

func TestConfigureFromEnvMemoryLimit(t *testing.T) {
	original := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(original)

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1073741824") // 1 GiB
	t.Setenv("MEMORY_RATIO", "")

	result := ConfigureFromEnv()

	if !result.Configured {
		t.Fatal("Expected Configured=true")
	}
	if result.Source != "MEMORY_LIMIT" {
		t.Errorf("Expected Source=MEMORY_LIMIT, got %q", result.Source)
	}
	if result.ContainerLimit != 1073741824 {
		t.Errorf("Expected ContainerLimit=1073741824, got %d", result.ContainerLimit)
	}

	limit := float64(1073741824)
	expected := int64(limit * DefaultMemoryRatio)
	if result.GoMemLimit != expected {
		t.Errorf("Expected GoMemLimit=%d, got %d", expected, result.GoMemLimit)
	}
}

func TestConfigureFromEnvCustomRatio(t *testing.T) {
	original := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(original)

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1000000000")
	t.Setenv("MEMORY_RATIO", "0.5")

	result := ConfigureFromEnv()

	if result.Ratio != 0.5 {
		t.Errorf("Expected Ratio=0.5, got %f", result.Ratio)
	}
	if result.GoMemLimit != 500000000 {
		t.Errorf("Expected GoMemLimit=500000000, got %d", result.GoMemLimit)
	}
}

func TestConfigureFromEnvInvalidLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "not-a-number")
	t.Setenv("MEMORY_RATIO", "")

	result := ConfigureFromEnv()

	if result.Configured {
		t.Error("Expected Configured=false for invalid MEMORY_LIMIT")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
