package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-chat-widget/internal/http/middleware"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// StreamHello is the first frame written on a new stream.
type StreamHello struct {
	Type      string `json:"type" example:"ready"`
	ProfileID string `json:"profile_id"`
	Pending   int    `json:"pending"`
}

// Stream godoc
// @ID          stream
// @Summary     Stream session events
// @Description Upgrades to a websocket and pushes session events (message.created, message.updated,
// @Description messages.read, visitor.updated, typing) as JSON text frames. Inbound frames are ignored.
// @Tags        Stream
// @Param       X-Profile-ID  header  string  false "Browser profile id"
// @Param       profile_id    query   string  false "Browser profile id (for clients that cannot set headers)"
// @Success     101  "Switching protocols"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /stream [get]
func (h *Handlers) Stream(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("websocket_upgrade_failed")
		return
	}
	defer conn.Close()

	events, cancel := s.Subscribe(h.buffer)
	defer cancel()

	lg := middleware.LoggerFrom(c)
	lg.Info().Str("profile_id", s.ProfileID).Msg("stream_opened")
	defer lg.Info().Str("profile_id", s.ProfileID).Msg("stream_closed")

	// Reader: only handles control frames and notices the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					lg.Debug().Err(err).Msg("stream_read_failed")
				}
				return
			}
		}
	}()

	if err := writeFrame(conn, StreamHello{Type: "ready", ProfileID: s.ProfileID, Pending: s.PendingReplies()}); err != nil {
		return
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeFrame(conn, ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(v)
}

// StreamCheckOrigin builds a websocket origin check from an allow-list.
// An empty list accepts any origin.
func StreamCheckOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
