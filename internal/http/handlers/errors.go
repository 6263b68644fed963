// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are mapped to HTTP responses via the `fail()` helper in this package and
// give widget clients a stable, machine-readable error taxonomy that supplements
// the human-readable message.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes mirror common HTTP status semantics.
//   - Widget-specific codes name the rejected input so the client can show a
//     precise hint (e.g. "file too large") without parsing the message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "unsupported_reaction",
//	  "message": "reaction not supported"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Widget-specific:
	ErrCodeEmptyMessage        = "empty_message"
	ErrCodeMessageTooLong      = "message_too_long"
	ErrCodeUnsupportedReaction = "unsupported_reaction"
	ErrCodeAttachmentTooLarge  = "attachment_too_large"
	ErrCodeInvalidFileName     = "invalid_file_name"
	ErrCodeInvalidURL          = "invalid_url"
	ErrCodeInvalidProfile      = "invalid_profile"
	ErrCodeSessionFailed       = "session_failed"
)
