// Visitor HTTP handlers.
//
//   - GET  /visitor           (visitor record snapshot)
//   - POST /visits            (the widget navigated; record a page visit)
//   - POST /host-messages     (cross-frame envelope posted by the host page)
//   - POST /visitor/country   (resolve the country on demand)
//
// Host messages that are not recognised, or that come from an origin outside
// the allow-list, are ignored: the endpoint answers 202 {"accepted": false}
// and nothing changes.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-widget/internal/domain"
	"github.com/tbourn/go-chat-widget/internal/services"
)

// HeaderHostOrigin carries the origin of a relayed cross-frame message. When
// absent the request Origin header is used.
const HeaderHostOrigin = "X-Host-Origin"

// maxEnvelopeBytes caps host-message bodies.
const maxEnvelopeBytes = 16 << 10

// VisitorResponse wraps the visitor record.
type VisitorResponse struct {
	Visitor domain.VisitorRecord `json:"visitor"`
	// CountryPending is true while a country lookup is in flight.
	CountryPending bool `json:"country_pending"`
}

// VisitRequest is the JSON payload for a page visit.
type VisitRequest struct {
	URL string `json:"url" example:"https://shop.example.com/pricing"`
}

// VisitResponse reports whether the visit was appended or judged a repeat.
type VisitResponse struct {
	Recorded bool `json:"recorded"`
}

// HostMessageResponse reports how a host message was handled.
type HostMessageResponse struct {
	Accepted bool `json:"accepted"`
	Recorded bool `json:"recorded"`
}

// CountryResponse reports the outcome of a country lookup.
type CountryResponse struct {
	Country  string `json:"country,omitempty" example:"DE"`
	Resolved bool   `json:"resolved"`
}

// GetVisitor godoc
// @ID          getVisitor
// @Summary     Get the visitor record
// @Tags        Visitor
// @Produce     json
// @Param       X-Profile-ID  header  string  false "Browser profile id"
// @Success     200  {object}  handlers.VisitorResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /visitor [get]
func (h *Handlers) GetVisitor(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	ok(c, http.StatusOK, VisitorResponse{
		Visitor:        s.VisitorRecord(),
		CountryPending: s.Visitor.CountryPending(),
	})
}

// PostVisit godoc
// @ID          postVisit
// @Summary     Record a page visit
// @Description Appends the URL to the visited pages unless the dedup policy judges it a repeat.
// @Tags        Visitor
// @Accept      json
// @Produce     json
// @Param       X-Profile-ID  header  string                 false "Browser profile id"
// @Param       body          body    handlers.VisitRequest  true  "Visited page"
// @Success     200  {object}  handlers.VisitResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /visits [post]
func (h *Handlers) PostVisit(c *gin.Context) {
	var req VisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	s := h.session(c)
	if s == nil {
		return
	}
	recorded, err := s.OnNavigate(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, services.ErrInvalidURL) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidURL, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, VisitResponse{Recorded: recorded})
}

// PostHostMessage godoc
// @ID          postHostMessage
// @Summary     Relay a cross-frame message
// @Description Forwards a raw envelope posted by the host page. Only {"type":"PAGE_URL","url":...} from an
// @Description accepted origin is tracked; anything else is ignored with 202.
// @Tags        Visitor
// @Accept      json
// @Produce     json
// @Param       X-Profile-ID   header  string  false "Browser profile id"
// @Param       X-Host-Origin  header  string  false "Origin of the posting frame"  example(https://shop.example.com)
// @Success     200  {object}  handlers.HostMessageResponse  "Tracked"
// @Success     202  {object}  handlers.HostMessageResponse  "Ignored"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Router      /host-messages [post]
func (h *Handlers) PostHostMessage(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEnvelopeBytes))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	s := h.session(c)
	if s == nil {
		return
	}

	origin := strings.TrimSpace(c.GetHeader(HeaderHostOrigin))
	if origin == "" {
		origin = c.GetHeader("Origin")
	}

	recorded, err := s.OnHostMessage(c.Request.Context(), origin, raw)
	switch {
	case err == nil:
		ok(c, http.StatusOK, HostMessageResponse{Accepted: true, Recorded: recorded})
	case errors.Is(err, services.ErrUnknownEnvelope),
		errors.Is(err, services.ErrOriginRejected),
		errors.Is(err, services.ErrInvalidURL):
		ok(c, http.StatusAccepted, HostMessageResponse{Accepted: false})
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ResolveCountry godoc
// @ID          resolveCountry
// @Summary     Resolve the visitor's country
// @Description Looks the country of the caller's address up when it is not known yet. Failures leave it unset and are not retried.
// @Tags        Visitor
// @Produce     json
// @Param       X-Profile-ID  header  string  false "Browser profile id"
// @Success     200  {object}  handlers.CountryResponse
// @Router      /visitor/country [post]
func (h *Handlers) ResolveCountry(c *gin.Context) {
	s := h.session(c)
	if s == nil {
		return
	}
	country, resolved := s.ResolveCountry(c.Request.Context(), c.ClientIP())
	ok(c, http.StatusOK, CountryResponse{Country: country, Resolved: resolved})
}
