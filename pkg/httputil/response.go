package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/observability"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Details []string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusServiceUnavailable, message)
}

// WriteAppError maps err to a status code by its apperr kind. Unclassified
// errors are logged and reported as a generic internal error.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal || appErr.Kind == apperr.KindEventEmission {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Kind:  apperr.KindInternal.String(),
		})
		return
	}

	WriteJSON(w, appErr.Kind.HTTPStatus(), ErrorResponse{
		Error:   appErr.Message,
		Kind:    appErr.Kind.String(),
		Details: appErr.Details,
	})
}

// WriteResult writes data with status, or the error when err is set
func WriteResult(w http.ResponseWriter, r *http.Request, status int, data interface{}, err error) {
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	if err := WriteJSON(w, status, data); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Failed to encode response")
	}
}
