package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/sunup/pkg/apperr"
)

// ParseJSON decodes a single JSON object from the request body. Unknown
// fields, trailing data and an empty body are validation errors.
func ParseJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is required")
		case errors.As(err, &tooLarge):
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.Validation("invalid JSON: %v", err)
	}
	if decoder.More() {
		return apperr.Validation("invalid JSON: unexpected data after the request object")
	}
	return nil
}

// ParseJSONOrError decodes the body into dest, writing a 400 on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	return ok(w, r, ParseJSON(r, dest))
}

// ParsePathString returns a non-empty mux path variable
func ParsePathString(r *http.Request, key string) (string, error) {
	val := strings.TrimSpace(mux.Vars(r)[key])
	if val == "" {
		return "", apperr.Validation("missing path parameter: %s", key)
	}
	return val, nil
}

// ParsePathStringOrError is ParsePathString writing a 400 on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathString(r, key)
	return val, ok(w, r, err)
}

// ParseQueryString returns the query parameter key, or defaultVal when absent
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if val := strings.TrimSpace(r.URL.Query().Get(key)); val != "" {
		return val
	}
	return defaultVal
}

// ParseQueryInt parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	return parseQuery(r, key, defaultVal, "integer", strconv.Atoi)
}

// ParseQueryIntOrError is ParseQueryInt writing a 400 on failure
func ParseQueryIntOrError(w http.ResponseWriter, r *http.Request, key string, defaultVal int) (int, bool) {
	val, err := ParseQueryInt(r, key, defaultVal)
	return val, ok(w, r, err)
}

// ParseQueryBool parses a boolean query parameter
func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	return parseQuery(r, key, defaultVal, "boolean", strconv.ParseBool)
}

// ParseQueryBoolOrError is ParseQueryBool writing a 400 on failure
func ParseQueryBoolOrError(w http.ResponseWriter, r *http.Request, key string, defaultVal bool) (bool, bool) {
	val, err := ParseQueryBool(r, key, defaultVal)
	return val, ok(w, r, err)
}

func parseQuery[T any](r *http.Request, key string, defaultVal T, kind string, parse func(string) (T, error)) (T, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := parse(str)
	if err != nil {
		var zero T
		return zero, apperr.Validation("invalid %s for query parameter %s: %q", kind, key, str)
	}
	return val, nil
}

func ok(w http.ResponseWriter, r *http.Request, err error) bool {
	if err != nil {
		WriteAppError(w, r, err)
		return false
	}
	return true
}
