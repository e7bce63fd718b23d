package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ErrInvalidCredentials is returned when a request carries credentials that
// fail verification.
var ErrInvalidCredentials = errors.New("invalid credentials")

// IdentitySource extracts a verified identity from an inbound request. It
// returns (nil, nil) when the request carries no credentials at all.
type IdentitySource interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// HeaderSource trusts a subject header set by an authenticating gateway.
// Only use it behind a proxy that strips the header from client requests.
type HeaderSource struct {
	Header string
}

// NewHeaderSource creates a header-based identity source
func NewHeaderSource(header string) *HeaderSource {
	return &HeaderSource{Header: header}
}

// Authenticate reads the subject header
func (s *HeaderSource) Authenticate(r *http.Request) (*Identity, error) {
	subject := strings.TrimSpace(r.Header.Get(s.Header))
	if subject == "" {
		return nil, nil
	}
	return &Identity{Subject: subject}, nil
}

// OIDCSource verifies "Authorization: Bearer <id token>" against an OpenID
// Connect issuer.
type OIDCSource struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCSource discovers the issuer and builds a verifier for clientID
func NewOIDCSource(ctx context.Context, issuerURL, clientID string) (*OIDCSource, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return NewOIDCSourceWithVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCSourceWithVerifier wraps an existing verifier
func NewOIDCSourceWithVerifier(verifier *oidc.IDTokenVerifier) *OIDCSource {
	return &OIDCSource{verifier: verifier}
}

type profileClaims struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Authenticate verifies the bearer token and maps its claims
func (s *OIDCSource) Authenticate(r *http.Request) (*Identity, error) {
	raw, err := BearerToken(r)
	if err != nil || raw == "" {
		return nil, err
	}

	token, err := s.verifier.Verify(r.Context(), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	var claims profileClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidCredentials, err)
	}

	return &Identity{
		Subject:   token.Subject,
		Issuer:    token.Issuer,
		Email:     claims.Email,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
	}, nil
}

// BearerToken extracts the token from the Authorization header. It returns
// "" when the header is absent.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrInvalidCredentials)
	}
	return strings.TrimSpace(parts[1]), nil
}
