// Package streaming provides timeout-protected chunked writing for HTTP
// responses.
//
// The admin API serves downloaded reel files for preview before approval. A
// stalled client on a slow link would otherwise pin the file handle and the
// goroutine indefinitely; the TimeoutWriter enforces per-write and idle
// timeouts and reports client disconnects as ErrClientGone so handlers can
// treat them as non-errors.
package streaming
