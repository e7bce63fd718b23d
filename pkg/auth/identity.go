package auth

import (
	"context"

	"github.com/platinummonkey/sunup/pkg/contextkeys"
)

// Identity is an already verified external identity. Subject is the stable
// identifier issued by the identity provider; the remaining fields are
// profile claims used by syncProfile and for logging.
type Identity struct {
	Subject   string
	Issuer    string
	Email     string
	FirstName string
	LastName  string
}

// WithIdentity stores the verified identity in the context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return contextkeys.WithIdentity(ctx, identity)
}

// IdentityFromContext returns the verified identity, if any
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	if !ok || identity == nil || identity.Subject == "" {
		return nil, false
	}
	return identity, true
}
