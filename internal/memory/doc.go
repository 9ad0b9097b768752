// Package memory configures the Go soft memory limit (GOMEMLIMIT) from
// container memory limits.
//
// The service runs ffmpeg and yt-dlp as subprocesses, so a portion of the
// container's memory must stay reserved for them. By default only 85% of the
// container limit is handed to the Go heap; tune with MEMORY_RATIO.
//
// Call ConfigureFromEnv early in main(), before significant allocations.
package memory
