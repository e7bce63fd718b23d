package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"net/http/httptest"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSource(t *testing.T) {
	src := NewHeaderSource("X-Sunup-Subject")

	r := httptest.NewRequest("GET", "/", nil)
	identity, err := src.Authenticate(r)
	require.NoError(t, err)
	assert.Nil(t, identity)

	r.Header.Set("X-Sunup-Subject", "  user-123 ")
	identity, err = src.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.Subject)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		token   string
		wantErr bool
	}{
		{"absent", "", "", false},
		{"bearer", "Bearer abc.def", "abc.def", false},
		{"lowercase scheme", "bearer abc", "abc", false},
		{"basic", "Basic Zm9vOmJhcg==", "", true},
		{"no token", "Bearer ", "", true},
		{"garbage", "token", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			token, err := BearerToken(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestOIDCSource_RejectsInvalidTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}
	verifier := oidc.NewVerifier("https://issuer.example.com", keySet, &oidc.Config{ClientID: "sunup"})
	src := NewOIDCSourceWithVerifier(verifier)

	r := httptest.NewRequest("GET", "/", nil)
	identity, err := src.Authenticate(r)
	require.NoError(t, err)
	assert.Nil(t, identity, "no credentials is not an error")

	r.Header.Set("Authorization", "Bearer not-a-jwt")
	_, err = src.Authenticate(r)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestIdentityFromContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	_, ok = IdentityFromContext(WithIdentity(context.Background(), &Identity{}))
	assert.False(t, ok, "empty subject is not an identity")

	identity, ok := IdentityFromContext(WithIdentity(context.Background(), &Identity{Subject: "s"}))
	require.True(t, ok)
	assert.Equal(t, "s", identity.Subject)
}
