// Package ffmpeg wraps the ffmpeg and ffprobe binaries for the small
// set of operations the pipeline needs: probing downloaded files,
// remuxing for faststart playback, and extracting cover frames.
package ffmpeg
