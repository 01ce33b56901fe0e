// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found) mirror common HTTP status
//     semantics to aid interoperability.
//   - Domain-specific codes (e.g., task_failed) are reserved for business logic
//     errors that cannot be conveyed by status alone.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeTaskFailed       = "task_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
