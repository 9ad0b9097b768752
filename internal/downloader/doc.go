// Package downloader fetches source reels with yt-dlp. Downloads run in
// a bounded worker pool sized for IO-heavy work, each with its own
// timeout, and every completed file is registered in the store under the
// <source>_<pk>.mp4 naming convention the rest of the pipeline relies on.
package downloader
