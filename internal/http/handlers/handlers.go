package handlers

// Every endpoint operates on the session of the calling browser profile,
// identified by the X-Profile-ID header (see middleware.Profile). Handlers
// decode input, call the session, and map sentinel errors onto the error
// envelope.

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-widget/internal/http/middleware"
	"github.com/tbourn/go-chat-widget/internal/services"
	"github.com/tbourn/go-chat-widget/internal/utils"
)

// SessionProvider hands out the session of a profile, creating it on first
// use. clientIP is the caller's address as resolved by gin (trusted proxies
// applied). *services.Sessions satisfies it.
type SessionProvider interface {
	Get(ctx context.Context, profileID, clientIP string) (*services.Session, error)
}

// Options tunes optional handler behavior.
type Options struct {
	// IdempotencyDB stores Idempotency-Key records for sends. Nil disables
	// replay.
	IdempotencyDB *gorm.DB
	// IdempotencyTTL is how long a key replays its original message.
	IdempotencyTTL time.Duration
	// StreamBuffer is the event buffer of each websocket subscriber.
	StreamBuffer int
	// CheckOrigin decides websocket upgrades; nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

// Handlers groups the widget endpoints.
type Handlers struct {
	sessions SessionProvider
	idemDB   *gorm.DB
	idemTTL  time.Duration
	buffer   int
	upgrader websocket.Upgrader
}

// New constructs Handlers bound to sessions.
func New(sessions SessionProvider, opts Options) *Handlers {
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	buf := opts.StreamBuffer
	if buf <= 0 {
		buf = 32
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Handlers{
		sessions: sessions,
		idemDB:   opts.IdempotencyDB,
		idemTTL:  ttl,
		buffer:   buf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     check,
		},
	}
}

// session resolves the caller's session or writes an error and returns nil.
func (h *Handlers) session(c *gin.Context) *services.Session {
	s, err := h.sessions.Get(c.Request.Context(), middleware.ProfileID(c), c.ClientIP())
	if err != nil {
		if errors.Is(err, services.ErrInvalidProfile) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidProfile, err.Error())
			return nil
		}
		fail(c, http.StatusInternalServerError, ErrCodeSessionFailed, err.Error())
		return nil
	}
	return s
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 50
		maxPageSize     = 200
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}
