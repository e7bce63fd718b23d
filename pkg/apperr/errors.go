package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies domain failures. Each kind has a stable message prefix
// that clients may match on.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindPrincipalNotFound
	KindForbidden
	KindCrossTenantAccess
	KindNotFound
	KindValidation
	KindStageSkipped
	KindInvalidStage
	KindStageInUse
	KindEventEmission
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindPrincipalNotFound:
		return "principal_not_found"
	case KindForbidden:
		return "forbidden"
	case KindCrossTenantAccess:
		return "cross_tenant_access"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindStageSkipped:
		return "stage_skipped"
	case KindInvalidStage:
		return "invalid_stage"
	case KindStageInUse:
		return "stage_in_use"
	case KindEventEmission:
		return "event_emission"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to the status code used by the HTTP surface.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated, KindPrincipalNotFound:
		return http.StatusUnauthorized
	case KindForbidden, KindCrossTenantAccess:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindInvalidStage:
		return http.StatusBadRequest
	case KindStageSkipped, KindStageInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified domain failure.
type Error struct {
	Kind    Kind
	Message string
	// Details carries structured context, e.g. the skipped stage names.
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind so callers can write
// errors.Is(err, &apperr.Error{Kind: apperr.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Unauthenticated reports a request with no verified identity.
func Unauthenticated(reason string) *Error {
	msg := "Unauthorized"
	if reason != "" {
		msg += ": " + reason
	}
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// PrincipalNotFound reports a verified identity with no provisioned user.
func PrincipalNotFound() *Error {
	return &Error{Kind: KindPrincipalNotFound, Message: "User not found"}
}

// Forbidden reports an authorization failure.
func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: "Forbidden: " + fmt.Sprintf(format, args...)}
}

// CrossTenantAccess reports a write against another tenant's record.
func CrossTenantAccess(resource string) *Error {
	return &Error{
		Kind:    KindCrossTenantAccess,
		Message: "Forbidden: cannot modify records belonging to another tenant",
		Details: []string{resource},
	}
}

// NotFound reports a missing record, including records hidden by tenant isolation.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: "Not found: " + resource}
}

// Validation reports bad input or a violated business rule.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: "Validation error: " + fmt.Sprintf(format, args...)}
}

// StageSkipped reports a forward move that bypasses intermediate stages.
func StageSkipped(target string, skipped []string) *Error {
	return &Error{
		Kind: KindStageSkipped,
		Message: fmt.Sprintf("Cannot skip stages. You must move through: %s before reaching %s",
			strings.Join(skipped, ", "), target),
		Details: skipped,
	}
}

// InvalidStage reports a target stage that is not an active stage of the tenant.
func InvalidStage(name string) *Error {
	return &Error{Kind: KindInvalidStage, Message: fmt.Sprintf("Invalid stage: %q", name)}
}

// StageInUse reports a deactivation attempt on an occupied stage.
func StageInUse(name string, count int) *Error {
	return &Error{
		Kind:    KindStageInUse,
		Message: fmt.Sprintf("Cannot deactivate stage %q: %d people currently in this stage", name, count),
	}
}

// EventEmission wraps a failure to record a domain event. It is logged, never returned to callers.
func EventEmission(err error) *Error {
	return &Error{Kind: KindEventEmission, Message: "Failed to emit event", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound reports whether err is a NotFound failure.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// IsForbidden reports whether err is an authorization failure, including cross-tenant writes.
func IsForbidden(err error) bool {
	k := KindOf(err)
	return err != nil && (k == KindForbidden || k == KindCrossTenantAccess)
}

// IsAuthentication reports whether err means the caller could not be resolved.
func IsAuthentication(err error) bool {
	k := KindOf(err)
	return err != nil && (k == KindUnauthenticated || k == KindPrincipalNotFound)
}
