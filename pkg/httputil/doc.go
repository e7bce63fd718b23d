// Package httputil provides HTTP helpers shared by the API handlers.
//
// # Responses
//
//	httputil.WriteSuccess(w, person)
//	httputil.WriteCreated(w, person)
//	httputil.WriteAppError(w, r, err) // status from the apperr kind
//
// Domain errors are rendered as
//
//	{"error": "Cannot skip stages. ...", "kind": "stage_skipped", "details": ["Met", "QMet"]}
//
// Errors without a kind are logged with the request logger and rendered as a
// generic 500 so internal messages never reach clients.
//
// # Request Parsing
//
//	var req moveRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // response already written
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//	limit, err := httputil.ParseQueryInt(r, "limit", 0)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: identity and rate limiting middleware
package httputil
