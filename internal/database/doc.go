// Package database manages the SQLite store backing the reelpost service.
//
// The store tracks downloaded reels and their lifecycle (downloaded ->
// pending -> posted/rejected/failed), the history of published posts, an
// audit trail of admin approval decisions, admin API users and sessions, and
// a small metadata table used for values that must survive restarts (the
// Telegram update offset, a mirror of the Instagram session).
//
// The original deployment kept this state in loose JSON flag files on the
// data volume; the single-writer SQLite database replaces those while living
// on the same volume.
package database
