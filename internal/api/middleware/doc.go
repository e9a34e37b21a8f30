// Package middleware holds the gin middleware of the diagnostics server:
// CORS for browser tools and token-bucket rate limiting, per client or
// global.
package middleware
