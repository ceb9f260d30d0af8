// Package middleware provides the gin middleware of the signal API.
//
//   - CORS: cross-origin access with trace headers exposed
//   - RateLimit: per-IP token buckets that are evicted once idle
//   - GlobalRateLimit: one token bucket shared by every client
//   - Gzip: response compression for clients that accept it
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
