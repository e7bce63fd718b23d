package middleware

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/httputil"
	"github.com/platinummonkey/sunup/pkg/observability"
)

// IdentityMiddleware authenticates requests with source. A request without
// credentials continues anonymously.
func IdentityMiddleware(source auth.IdentitySource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := source.Authenticate(r)
			if err != nil {
				logger := observability.FromContext(r.Context()).WithError(err)
				if errors.Is(err, auth.ErrInvalidCredentials) {
					logger.Debug("Rejected request credentials")
					httputil.WriteAppError(w, r, apperr.Unauthenticated("invalid credentials"))
					return
				}
				logger.Error("Identity source failed")
				httputil.WriteServiceUnavailable(w, "identity provider unavailable")
				return
			}
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := auth.WithIdentity(r.Context(), identity)
			ctx = observability.WithLogger(ctx, observability.GetLogger(ctx).WithField("subject", identity.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
