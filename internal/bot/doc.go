// Package bot orchestrates the repost pipeline: scheduled posting slots
// with admin approval over Telegram, nightly download batches, the
// startup demo offer, and the callback dispatch that feeds decisions
// back into waiting jobs.
package bot
