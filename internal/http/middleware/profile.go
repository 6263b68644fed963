// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the browser profile a request belongs to. The widget has
// no accounts: a profile is an opaque id the client keeps in browser storage
// and sends back on every request.
//
//   - The id is read from the X-Profile-ID header, or from the profile_id
//     query parameter for clients that cannot set headers (websockets).
//   - When absent, a fresh id is generated and the request is marked so the
//     rate limiter keys it by client IP instead.
//   - The resolved id is echoed in the X-Profile-ID response header so the
//     client can persist it.
//   - A malformed id is rejected with 400 before any handler runs.
//   - The request-scoped logger, when present, is rebound with profile_id.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HeaderProfileID carries the browser profile identifier.
const HeaderProfileID = "X-Profile-ID"

const (
	ctxKeyProfileID        = "profileID"
	ctxKeyProfileGenerated = "profileGenerated"
)

// ProfileID returns the profile id stored by Profile, or "" when none.
func ProfileID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyProfileID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ProfileGenerated reports whether Profile minted the id for this request
// because the client sent none.
func ProfileGenerated(c *gin.Context) bool {
	return c.GetBool(ctxKeyProfileGenerated)
}

// NewProfileID returns a fresh identifier: a UUIDv4 without hyphens.
func NewProfileID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Profile resolves, validates and echoes the profile id. valid may be nil to
// accept any non-empty id.
func Profile(valid func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderProfileID))
		if id == "" {
			id = strings.TrimSpace(c.Query("profile_id"))
		}
		if id == "" {
			id = NewProfileID()
			c.Set(ctxKeyProfileGenerated, true)
		}
		if valid != nil && !valid(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "invalid_profile",
				"message":    "invalid " + HeaderProfileID,
			})
			return
		}
		c.Set(ctxKeyProfileID, id)
		c.Writer.Header().Set(HeaderProfileID, id)
		if v, ok := c.Get(loggerKey); ok {
			if lg, ok := v.(*zerolog.Logger); ok {
				scoped := lg.With().Str("profile_id", id).Logger()
				c.Set(loggerKey, &scoped)
			}
		}
		c.Next()
	}
}
