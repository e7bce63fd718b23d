// Package middleware provides the request identity and rate limiting
// middleware in front of the API.
//
// # Identity
//
// IdentityMiddleware runs the configured auth.IdentitySource and stores the
// verified identity in the request context. Requests without credentials pass
// through unchanged; the authorization guard decides whether the operation
// needs a caller. Credentials that fail verification are rejected with 401.
//
//	router.Use(middleware.IdentityMiddleware(auth.NewHeaderSource("X-Sunup-Subject")))
//
// # Rate Limiting
//
// Identified callers are limited per identity subject, anonymous callers per
// client IP. Two Limiter implementations exist: the in-process token bucket
// RateLimiter and the Redis fixed-window DistributedRateLimiter, which shares
// counts across replicas.
//
//	identified, anonymous := middleware.LimitersFromConfig(cfg.RateLimit, redisClient)
//	router.Use(middleware.NewRateLimitMiddleware(identified, anonymous).Handler)
//
// Redis failures fail open by default.
//
// # Related Packages
//
//   - pkg/auth: identity sources and the guard
//   - pkg/httputil: response helpers
package middleware
