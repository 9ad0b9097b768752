/*
Package workers provides utilities for determining optimal worker pool sizes
in containerized environments.

When running in a container, the number of available CPUs may be limited by
cgroup constraints. Go 1.19+ sets GOMAXPROCS from the container CPU limit,
while runtime.NumCPU() still reports the host machine's count. The helpers
here size worker pools from GOMAXPROCS so that, for example, the yt-dlp
download pool on a 2-CPU Railway container does not spawn a worker per host
core.

	// I/O-bound work (subprocess downloads, network calls)
	n := workers.ForIO(8)

	// CPU-bound work (ffmpeg remuxing)
	n := workers.ForCPU(4)

All functions respect the DOWNLOAD_WORKERS environment variable, which
overrides the automatic calculation when operators need a fixed pool size.
*/
package workers
