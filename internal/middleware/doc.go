// Package middleware provides the HTTP middleware chain for the admin
// API: W3C access logging and Prometheus request metrics.
package middleware
