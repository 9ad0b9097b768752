// Package telegram is a minimal Bot API client covering the surface the
// service needs: HTML messages, video uploads with inline keyboards,
// callback query handling, and a long-poll update loop whose offset is
// persisted so restarts do not replay old updates.
package telegram
