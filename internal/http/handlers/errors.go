// Package handlers defines the error codes returned by the ops API.
//
// Codes are lowercase snake_case and supplement the HTTP status with a
// stable, machine-readable value. Every error response carries one of them.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "list_failed",
//	  "message": "journal unavailable"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeListFailed = "list_failed"
)
