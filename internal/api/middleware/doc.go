// Package middleware provides the HTTP middleware of the coordinator daemon.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing for browser clients
//   - RateLimit: Per-IP token bucket rate limiting with stale client eviction
//   - GlobalRateLimit: One bucket shared by every client
//   - Recovery: Panic recovery with a classified error response
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
