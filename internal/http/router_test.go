package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chat-widget/internal/clock"
	"github.com/tbourn/go-chat-widget/internal/config"
	"github.com/tbourn/go-chat-widget/internal/http/handlers"
	"github.com/tbourn/go-chat-widget/internal/http/middleware"
	"github.com/tbourn/go-chat-widget/internal/replies"
	"github.com/tbourn/go-chat-widget/internal/repo"
	"github.com/tbourn/go-chat-widget/internal/schedule"
	"github.com/tbourn/go-chat-widget/internal/services"
	"github.com/tbourn/go-chat-widget/internal/storage"
)

const (
	shopOrigin = "https://shop.example.com"
	apiBase    = "/api/v1"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    apiBase,
		RateRPS:        1000,
		RateBurst:      1000,
		LogRedact:      true,
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		Visitor:        config.VisitorConfig{HostOrigins: []string{shopOrigin}},
	}
}

type harness struct {
	r        *gin.Engine
	queue    *schedule.Queue
	sessions *services.Sessions
}

func newHarness(t *testing.T, cfg config.Config, db *gorm.DB) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fc := clock.NewFake(time.Date(2024, 5, 1, 21, 41, 0, 0, time.UTC))
	q := schedule.New(fc)
	responder, err := replies.New(replies.PolicyKeyword, replies.Default(), 0)
	if err != nil {
		t.Fatalf("responder: %v", err)
	}
	sessions := &services.Sessions{
		Store:     storage.NewAdapter(storage.NewMemoryBackend()),
		Clock:     fc,
		Queue:     q,
		Responder: responder,
		Options: services.SessionOptions{
			ReplyDelay:     time.Second,
			AllowedOrigins: cfg.Visitor.HostOrigins,
		},
	}

	r := gin.New()
	RegisterRoutes(r, Deps{Sessions: sessions, IdempotencyDB: db}, cfg)
	return &harness{r: r, queue: q, sessions: sessions}
}

func (h *harness) do(method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Origin", shopOrigin)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	w := h.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-all CORS expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	if got := w.Header().Get("Content-Security-Policy"); got != "frame-ancestors 'self' "+shopOrigin {
		t.Fatalf("csp=%q", got)
	}

	w = h.do(http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	w = h.do(http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("404 expected, got %d", w.Code)
	}
	var er handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != handlers.ErrCodeNotFound {
		t.Fatalf("404 envelope: %v %+v", err, er)
	}

	w = h.do(http.MethodDelete, apiBase+"/messages", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("405 expected, got %d", w.Code)
	}

	// Swagger is off unless enabled.
	if w := h.do(http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{shopOrigin}
	h := newHarness(t, cfg, nil)

	w := h.do(http.MethodGet, "/health", "", nil)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != shopOrigin {
		t.Fatalf("allowed origin not echoed: %q", got)
	}
	w = h.do(http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign origin should be refused, got %d", w.Code)
	}
}

func TestRegisterRoutes_ConversationFlow(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	// First request without a profile gets one assigned.
	w := h.do(http.MethodPost, apiBase+"/messages", `{"text":"hello"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /messages = %d body=%s", w.Code, w.Body.String())
	}
	profile := w.Header().Get(middleware.HeaderProfileID)
	if profile == "" {
		t.Fatalf("profile id not assigned")
	}
	withProfile := map[string]string{middleware.HeaderProfileID: profile}

	w = h.do(http.MethodGet, apiBase+"/messages", "", withProfile)
	var list handlers.ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(list.Messages) != 2 || list.Pending != 1 {
		t.Fatalf("want greeting+user with one pending reply, got %+v", list)
	}
	etag := w.Header().Get("ETag")

	w = h.do(http.MethodGet, apiBase+"/messages", "", map[string]string{
		middleware.HeaderProfileID: profile,
		"If-None-Match":            etag,
	})
	if w.Code != http.StatusNotModified {
		t.Fatalf("want 304, got %d", w.Code)
	}

	h.queue.Advance(time.Second)
	w = h.do(http.MethodGet, apiBase+"/messages", "", map[string]string{
		middleware.HeaderProfileID: profile,
		"If-None-Match":            etag,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("reply must invalidate the ETag, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(list.Messages) != 3 || list.Messages[2].Sender != "bot" || !list.Messages[1].Read {
		t.Fatalf("unexpected log after reply: %+v", list.Messages)
	}

	w = h.do(http.MethodPost, fmt.Sprintf("%s/messages/%d/reaction", apiBase, list.Messages[2].ID), `{"emoji":"🦄"}`, withProfile)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unsupported reaction = %d", w.Code)
	}

	w = h.do(http.MethodPost, apiBase+"/host-messages", `{"type":"RESIZE"}`, withProfile)
	if w.Code != http.StatusAccepted {
		t.Fatalf("ignored host message = %d", w.Code)
	}
	w = h.do(http.MethodPost, apiBase+"/host-messages", `{"type":"PAGE_URL","url":"https://shop.example.com/cart"}`, withProfile)
	if w.Code != http.StatusOK {
		t.Fatalf("host message = %d", w.Code)
	}
}

func TestRegisterRoutes_InvalidProfile(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	w := h.do(http.MethodGet, apiBase+"/visitor", "", map[string]string{middleware.HeaderProfileID: "bad profile!"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), handlers.ErrCodeInvalidProfile) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRegisterRoutes_IdempotentSend(t *testing.T) {
	h := newHarness(t, testConfig(), newTestDB(t))
	hdr := map[string]string{
		middleware.HeaderProfileID:      "p1",
		middleware.HeaderIdempotencyKey: "abc-123",
	}

	for i := 0; i < 3; i++ {
		if w := h.do(http.MethodPost, apiBase+"/messages", `{"text":"hello"}`, hdr); w.Code != http.StatusCreated {
			t.Fatalf("send %d = %d body=%s", i, w.Code, w.Body.String())
		}
	}
	if n := h.queue.Pending(); n != 1 {
		t.Fatalf("replays must not schedule replies, pending=%d", n)
	}

	w := h.do(http.MethodPost, apiBase+"/messages", `{"text":"hello"}`, map[string]string{
		middleware.HeaderProfileID:      "p1",
		middleware.HeaderIdempotencyKey: "bad key with spaces",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed key = %d", w.Code)
	}
}

func TestRegisterRoutes_Stream(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	srv := httptest.NewServer(h.r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + apiBase + "/stream?profile_id=streamer"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{shopOrigin}})
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello handlers.StreamHello
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != "ready" || hello.ProfileID != "streamer" {
		t.Fatalf("unexpected hello: %+v", hello)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+apiBase+"/messages", strings.NewReader(`{"text":"ping"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderProfileID, "streamer")
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("post status=%d", res.StatusCode)
	}

	for {
		var ev services.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if ev.Type == services.EventMessageCreated {
			if ev.Message == nil || ev.Message.Text != "ping" {
				t.Fatalf("unexpected event: %+v", ev)
			}
			break
		}
	}
}

func TestMaxBodyBytes(t *testing.T) {
	if got := maxBodyBytes(3 << 20); got != 4<<20+1<<20 {
		t.Fatalf("maxBodyBytes=%d", got)
	}
	if got := maxBodyBytes(0); got != services.DefaultMaxAttachmentBytes*4/3+1<<20 {
		t.Fatalf("default maxBodyBytes=%d", got)
	}
}

func TestLimitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(4))
	r.POST("/echo", func(c *gin.Context) {
		var v map[string]any
		if err := c.ShouldBindJSON(&v); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":"long enough"}`)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body accepted: %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("small body rejected: %d", w.Code)
	}
}

func TestGroupWithPrefixAndJoinPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/a", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	groupWithPrefix(r, "/v2").GET("/b", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, p := range []string{"/a", "/v2/b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("GET %s = %d", p, w.Code)
		}
	}
	if joinPath("/", "/stream") != "/stream" || joinPath("/api", "/stream") != "/api/stream" {
		t.Fatalf("joinPath")
	}
	if got := frameAncestors(nil); len(got) != 1 || got[0] != "*" {
		t.Fatalf("frameAncestors(nil)=%v", got)
	}
}

func TestRateLimit_HeaderlessBurstFromOneIP(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 1, 1
	h := newHarness(t, cfg, nil)

	codes := map[int]int{}
	for i := 0; i < 50; i++ {
		codes[h.do(http.MethodGet, apiBase+"/messages", "", nil).Code]++
	}
	if codes[http.StatusOK] != 1 || codes[http.StatusTooManyRequests] != 49 {
		t.Fatalf("codes=%v", codes)
	}
	if n := len(h.sessions.Profiles()); n != 1 {
		t.Fatalf("rejected requests must not create sessions, got %d", n)
	}
}

func TestRateLimit_RotatingProfilesHitIPLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateIPRPS, cfg.RateIPBurst = 0.001, 3
	h := newHarness(t, cfg, nil)

	allowed := 0
	for i := 0; i < 20; i++ {
		w := h.do(http.MethodGet, apiBase+"/messages", "", map[string]string{
			middleware.HeaderProfileID: fmt.Sprintf("rotating-%d", i),
		})
		if w.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 3 || len(h.sessions.Profiles()) != 3 {
		t.Fatalf("allowed=%d sessions=%d want 3", allowed, len(h.sessions.Profiles()))
	}
}

func TestRateLimit_ForwardedForOnlyFromTrustedProxies(t *testing.T) {
	burst := func(cfg config.Config) int {
		h := newHarness(t, cfg, nil)
		allowed := 0
		for _, client := range []string{"203.0.113.7", "198.51.100.2"} {
			w := h.do(http.MethodGet, apiBase+"/messages", "", map[string]string{"X-Forwarded-For": client})
			if w.Code == http.StatusOK {
				allowed++
			}
		}
		return allowed
	}

	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	if got := burst(cfg); got != 1 {
		t.Fatalf("untrusted X-Forwarded-For must be ignored, allowed=%d", got)
	}
	cfg.TrustedProxies = []string{"192.0.2.0/24"}
	if got := burst(cfg); got != 2 {
		t.Fatalf("trusted proxy: each forwarded client gets its own bucket, allowed=%d", got)
	}
}
