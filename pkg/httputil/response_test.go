package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/apperr"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteCreated(w, map[string]string{"id": "p-1"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "p-1")
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantError  string
	}{
		{
			name:       "unauthenticated",
			err:        apperr.Unauthenticated("no identity"),
			wantStatus: http.StatusUnauthorized,
			wantKind:   "unauthenticated",
			wantError:  "Unauthorized: no identity",
		},
		{
			name:       "principal not found",
			err:        apperr.PrincipalNotFound(),
			wantStatus: http.StatusUnauthorized,
			wantKind:   "principal_not_found",
		},
		{
			name:       "forbidden",
			err:        apperr.Forbidden("nope"),
			wantStatus: http.StatusForbidden,
			wantKind:   "forbidden",
			wantError:  "Forbidden: nope",
		},
		{
			name:       "cross tenant",
			err:        apperr.CrossTenantAccess("person"),
			wantStatus: http.StatusForbidden,
			wantKind:   "cross_tenant_access",
		},
		{
			name:       "not found",
			err:        apperr.NotFound("person"),
			wantStatus: http.StatusNotFound,
			wantKind:   "not_found",
			wantError:  "Not found: person",
		},
		{
			name:       "wrapped validation",
			err:        fmt.Errorf("create: %w", apperr.Validation("bad email")),
			wantStatus: http.StatusBadRequest,
			wantKind:   "validation",
		},
		{
			name:       "stage skipped",
			err:        apperr.StageSkipped("Sale", []string{"Met", "QMet"}),
			wantStatus: http.StatusConflict,
			wantKind:   "stage_skipped",
		},
		{
			name:       "stage in use",
			err:        apperr.StageInUse("Met", 2),
			wantStatus: http.StatusConflict,
			wantKind:   "stage_in_use",
		},
		{
			name:       "plain error",
			err:        errors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "internal",
			wantError:  "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/people", nil)

			WriteAppError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body.Kind)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body.Error)
			}
			assert.NotContains(t, body.Error, "connection refused")
		})
	}
}

func TestWriteAppError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	WriteAppError(w, r, apperr.StageSkipped("Sale", []string{"Met", "QMet"}))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"Met", "QMet"}, body.Details)
	assert.Equal(t, "Cannot skip stages. You must move through: Met, QMet before reaching Sale", body.Error)
}

func TestWriteResult(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	w := httptest.NewRecorder()
	WriteResult(w, r, http.StatusCreated, map[string]int{"n": 1}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	WriteResult(w, r, http.StatusCreated, nil, apperr.NotFound("person"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
