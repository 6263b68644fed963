// Message HTTP handlers.
//
// This file exposes REST endpoints for the session's message log:
//   - GET  /messages                 (paginated log, ETag, pending replies)
//   - POST /messages                 (append a user message and schedule the reply)
//   - POST /messages/{id}/reaction   (toggle a reaction)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous send with
// the same key exists for the profile, the handler returns the recorded user
// message, sets `Idempotency-Replayed: true`, and schedules nothing.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-widget/internal/domain"
	"github.com/tbourn/go-chat-widget/internal/http/middleware"
	"github.com/tbourn/go-chat-widget/internal/repo"
	"github.com/tbourn/go-chat-widget/internal/services"
	"github.com/tbourn/go-chat-widget/internal/utils"
)

//
// DTOs
//

// FilePayload is a file sent inline in a JSON send. Data is base64 encoded
// on the wire.
type FilePayload struct {
	Name string `json:"name" example:"invoice.pdf"`
	Data []byte `json:"data" swaggertype:"string" format:"base64"`
}

// PostMessageRequest is the JSON payload for sending a user message. A send
// needs text, a file, or both.
type PostMessageRequest struct {
	Text string       `json:"text" example:"hello"`
	File *FilePayload `json:"file,omitempty"`
}

// PostMessageResponse is the JSON envelope for a newly appended user message.
type PostMessageResponse struct {
	Message domain.Message `json:"message"`
	// Pending is the number of replies scheduled but not yet appended.
	Pending int `json:"pending" example:"1"`
}

// ReactionRequest is the JSON payload for toggling a reaction.
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required" example:"👍"`
}

// ListMessagesResponse contains a page of the log and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
	Pending    int              `json:"pending" example:"0"`
}

//
// Handlers
//

// ListMessages godoc
// @ID          listMessages
// @Summary     List the message log
// @Description Returns a page of the session's messages in display order and the number of pending replies.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
//
// @Param       X-Profile-ID  header  string  false "Browser profile id"  example(3f9a1c2b7d4e4f0a9b8c6d5e4f3a2b1c)
// @Param       page          query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size     query   int     false "Items per page"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  "Not modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}

	pending := s.PendingReplies()
	etag := fmt.Sprintf(`W/"messages:%s:%d:%d:%d"`, s.ProfileID, s.Messages.Len(), s.Messages.Revision(), pending)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		notModified(c, etag)
		return
	}
	c.Header("ETag", etag)

	page, pageSize := clampPagination(c)
	all := s.History()
	lo, hi := utils.Window(len(all), page, pageSize)
	totalPages := utils.TotalPages(len(all), pageSize)
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: all[lo:hi],
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int64(len(all)),
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
		Pending: pending,
	})
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Appends a user message (text, file, or both) and schedules the bot reply.
// @Description Accepts JSON or multipart/form-data with fields `text` and `file`.
// @Description Supports idempotency via the Idempotency-Key header (same key → same message, one reply).
// @Tags        Messages
// @Accept      json,mpfd
// @Produce     json
//
// @Param       X-Profile-ID     header  string  false "Browser profile id"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.PostMessageRequest  false "JSON send payload"
//
// @Success     201  {object}  handlers.PostMessageResponse  "Appended user message"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     413  {object}  handlers.ErrorResponse        "Attachment too large"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	ctx := c.Request.Context()

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.idemDB != nil {
		if rec, err := repo.GetIdempotency(ctx, h.idemDB, s.ProfileID, idemKey, time.Now().UTC()); err == nil {
			if prev, found := s.Messages.Get(rec.MessageID); found {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusCreated, PostMessageResponse{Message: prev, Pending: s.PendingReplies()})
				return
			}
		}
	}

	text, file, err := decodeSend(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	m, err := s.SendMessage(ctx, text, file)
	if err != nil {
		failSend(c, err)
		return
	}

	// Idempotency (store path), best effort.
	if idemKey != "" && h.idemDB != nil {
		if _, err := repo.CreateIdempotency(ctx, h.idemDB, s.ProfileID, idemKey, m.ID, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency_store_failed")
		}
	}

	ok(c, http.StatusCreated, PostMessageResponse{Message: m, Pending: s.PendingReplies()})
}

// ReactToMessage godoc
// @ID          reactToMessage
// @Summary     Toggle a reaction
// @Description Sets the emoji on the message, or clears it when it is already the current reaction.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-Profile-ID  header  string                   false "Browser profile id"
// @Param       id            path    int                      true  "Message id"
// @Param       body          body    handlers.ReactionRequest true  "Reaction payload"
//
// @Success     200  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /messages/{id}/reaction [post]
func (h *Handlers) ReactToMessage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be an integer")
		return
	}
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "emoji required")
		return
	}
	s := h.session(c)
	if s == nil {
		return
	}

	m, err := s.ReactTo(c.Request.Context(), id, req.Emoji)
	switch {
	case err == nil:
		ok(c, http.StatusOK, m)
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrUnsupportedReaction):
		fail(c, http.StatusBadRequest, ErrCodeUnsupportedReaction, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Helpers
//

// decodeSend reads a send from either a multipart form or a JSON body.
func decodeSend(c *gin.Context) (string, *services.FileUpload, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		text := c.PostForm("text")
		fh, err := c.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return text, nil, nil
		}
		if err != nil {
			return "", nil, errors.New("invalid multipart body")
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, errors.New("unreadable file")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", nil, errors.New("unreadable file")
		}
		return text, &services.FileUpload{Name: fh.Filename, Data: data}, nil
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", nil, errors.New("invalid JSON body")
	}
	if req.File == nil {
		return req.Text, nil, nil
	}
	return req.Text, &services.FileUpload{Name: req.File.Name, Data: req.File.Data}, nil
}

// failSend maps SendMessage errors to responses.
func failSend(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeEmptyMessage, err.Error())
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeMessageTooLong, err.Error())
	case errors.Is(err, services.ErrEmptyFileName):
		fail(c, http.StatusBadRequest, ErrCodeInvalidFileName, err.Error())
	case errors.Is(err, services.ErrAttachmentTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeAttachmentTooLarge, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
