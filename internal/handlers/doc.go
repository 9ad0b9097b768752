// Package handlers implements the admin HTTP API: health probes,
// cookie-session authentication, read access to the reel store, and
// manual triggers for the download and posting jobs.
package handlers
