package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessagePrefixes(t *testing.T) {
	tests := []struct {
		err    *Error
		prefix string
		status int
	}{
		{Unauthenticated(""), "Unauthorized", http.StatusUnauthorized},
		{Unauthenticated("missing identity"), "Unauthorized: missing identity", http.StatusUnauthorized},
		{PrincipalNotFound(), "User not found", http.StatusUnauthorized},
		{Forbidden("requires role %s", "Finance"), "Forbidden:", http.StatusForbidden},
		{CrossTenantAccess("person"), "Forbidden: cannot modify records belonging to another tenant", http.StatusForbidden},
		{NotFound("person"), "Not found:", http.StatusNotFound},
		{Validation("bad email"), "Validation error:", http.StatusBadRequest},
		{StageSkipped("Sale", []string{"Met", "QMet"}), "Cannot skip stages", http.StatusConflict},
		{InvalidStage("Nope"), "Invalid stage:", http.StatusBadRequest},
		{StageInUse("Met", 2), "Cannot deactivate stage", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.err.Error(), tt.prefix), tt.err.Error())
			assert.Equal(t, tt.status, tt.err.Kind.HTTPStatus())
		})
	}
}

func TestStageSkipped(t *testing.T) {
	err := StageSkipped("Sale", []string{"Met", "QMet"})
	assert.Equal(t, "Cannot skip stages. You must move through: Met, QMet before reaching Sale", err.Error())
	assert.Equal(t, []string{"Met", "QMet"}, err.Details)
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("moving person: %w", NotFound("person"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, IsNotFound(nil))

	assert.True(t, IsForbidden(Forbidden("x")))
	assert.True(t, IsForbidden(CrossTenantAccess("person")))
	assert.False(t, IsForbidden(NotFound("person")))

	assert.True(t, IsAuthentication(Unauthenticated("")))
	assert.True(t, IsAuthentication(PrincipalNotFound()))
	assert.False(t, IsAuthentication(Forbidden("x")))
}

func TestErrorsIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", StageInUse("Met", 1))
	assert.True(t, errors.Is(err, &Error{Kind: KindStageInUse}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound}))
}

func TestEventEmissionUnwraps(t *testing.T) {
	cause := errors.New("insert failed")
	err := EventEmission(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Failed to emit event: insert failed", err.Error())
	assert.Equal(t, http.StatusInternalServerError, err.Kind.HTTPStatus())
}
