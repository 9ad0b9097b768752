package workers

import (
	"os"
	"runtime"
	"testing"
)

func TestCountRespectsLimit(t *testing.T) {
	os.Unsetenv("DOWNLOAD_WORKERS")

	got := Count(100.0, 4)
	if got != 4 {
		t.Errorf("Count(100.0, 4) = %d, want 4", got)
	}
}

func TestCountMinimumOne(t *testing.T) {
	os.Unsetenv("DOWNLOAD_WORKERS")

	got := Count(0.0001, 0)
	if got != 1 {
		t.Errorf("Count(0.0001, 0) = %d, want 1", got)
	}
}

func TestCountOverride(t *testing.T) {
	t.Setenv("DOWNLOAD_WORKERS", "3")

	if got := Count(1.0, 0); got != 3 {
		t.Errorf("Count with override = %d, want 3", got)
	}

	// Override still capped by limit
	if got := Count(1.0, 2); got != 2 {
		t.Errorf("Count with override and limit = %d, want 2", got)
	}
}

func TestCountInvalidOverride(t *testing.T) {
	t.Setenv("DOWNLOAD_WORKERS", "not-a-number")

	want := runtime.GOMAXPROCS(0)
	if got := Count(1.0, 0); got != want {
		t.Errorf("Count with invalid override = %d, want %d", got, want)
	}
}

func TestHelperRatios(t *testing.T) {
	os.Unsetenv("DOWNLOAD_WORKERS")

	procs := runtime.GOMAXPROCS(0)

	if got := ForCPU(0); got != procs {
		t.Errorf("ForCPU(0) = %d, want %d", got, procs)
	}
	if got := ForIO(0); got != procs*2 {
		t.Errorf("ForIO(0) = %d, want %d", got, procs*2)
	}
}
