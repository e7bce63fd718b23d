// Package apperr defines the classified errors returned by the CRM core.
//
// Every failure that crosses a service boundary is an *Error carrying a Kind.
// Message prefixes are stable:
//
//	Unauthorized            caller has no verified identity
//	User not found          identity is not provisioned
//	Forbidden:              missing role or permission
//	Not found:              missing or hidden by tenant isolation
//	Validation error:       bad input
//	Cannot skip stages      forward pipeline skip
//	Invalid stage:          unknown or inactive stage
//	Cannot deactivate stage stage still occupied
//
// Handlers translate kinds to HTTP status codes with Kind.HTTPStatus.
package apperr
