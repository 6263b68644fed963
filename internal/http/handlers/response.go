// Package handlers provides the HTTP endpoints of the chat widget.
//
// Responses follow two shapes. Success bodies are the resource itself (a
// message, a visitor record, a page of the log). Failures always use
// ErrorResponse with a stable snake_case code from errors.go:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "unsupported_reaction",
//	  "message": "unsupported reaction"
//	}
//
// Only 5xx failures are logged here; client errors are already visible in
// the access log.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-widget/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching client reports with server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message, safe to show in the widget
	Message string `json:"message" example:"resource not found"`
}

// fail aborts the request with an ErrorResponse. Server errors are logged
// through the request-scoped logger, which carries the request and profile
// ids.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api_error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail, used by the router for its
// NoRoute/NoMethod fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes body as JSON with status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// notModified answers a conditional GET whose validator still matches. The
// ETag is echoed so caches can keep it.
func notModified(c *gin.Context, etag string) {
	c.Header("ETag", etag)
	c.Status(http.StatusNotModified)
}
