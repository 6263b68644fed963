// Package httpapi wires the HTTP transport (Gin) to the widget sessions,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, profile resolution, idempotency, and
// rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-chat-widget/docs"
	"github.com/tbourn/go-chat-widget/internal/config"
	"github.com/tbourn/go-chat-widget/internal/http/handlers"
	"github.com/tbourn/go-chat-widget/internal/http/middleware"
	"github.com/tbourn/go-chat-widget/internal/repo"
	"github.com/tbourn/go-chat-widget/internal/services"
)

// Deps are the runtime dependencies of the HTTP layer.
type Deps struct {
	Sessions handlers.SessionProvider
	// IdempotencyDB enables Idempotency-Key replay on sends. It is set when
	// the SQLite store driver is in use.
	IdempotencyDB *gorm.DB
}

// streamPath is the websocket route relative to the API base path.
const streamPath = "/stream"

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Access logging (redacting by default)
//  4. Recovery: capture panics after logger
//  5. Body size limiter (sized for attachments)
//  6. Metrics
//  7. Compression (never for the websocket route)
//  8. CORS and security headers
//
// and on the API group:
//  9. Profile resolution
//  10. Idempotency validator (before rate limiter to allow bypass on replay)
//  11. Rate limiters: per client IP, then per profile (bypass on replay)
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	// Client IPs key the rate limiter and the country lookup, so forwarded
	// headers are only honored from configured proxies.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn().Err(err).Msg("trusted_proxies_invalid")
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{handlers.HeaderHostOrigin},
		}))
	} else {
		r.Use(middleware.Logger())
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes(cfg.Visitor.MaxAttachmentBytes)))

	r.Use(middleware.Metrics(joinPath(apiBase, streamPath)))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{joinPath(apiBase, streamPath), "/metrics"}),
	))

	allowHeaders := []string{
		"Origin", "Content-Type", "Accept",
		middleware.HeaderProfileID, middleware.HeaderIdempotencyKey, handlers.HeaderHostOrigin,
		"If-None-Match",
	}
	exposeHeaders := []string{"X-Request-ID", middleware.HeaderProfileID, "Idempotency-Replayed", "ETag", "Content-Length"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:     cfg.Security.EnableHSTS,
		HSTSMaxAge:     cfg.Security.HSTSMaxAge,
		NoStore:        false,
		EnablePolicy:   true,
		FrameAncestors: frameAncestors(cfg.Visitor.HostOrigins),
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Sessions, handlers.Options{
		IdempotencyDB:  deps.IdempotencyDB,
		IdempotencyTTL: cfg.IdempotencyTTL,
		CheckOrigin:    handlers.StreamCheckOrigin(cfg.CORS.AllowedOrigins),
	})

	var lookup middleware.IdempotencyLookup
	if db := deps.IdempotencyDB; db != nil {
		lookup = func(ctx context.Context, profileID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, profileID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		}
	}
	chain := []gin.HandlerFunc{
		middleware.Profile(services.ValidProfileID),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, lookup),
	}
	if cfg.RateIPRPS > 0 {
		chain = append(chain, middleware.NewRateLimiter(cfg.RateIPRPS, cfg.RateIPBurst, middleware.KeyByIP()).Handler())
	}
	chain = append(chain, middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByProfileOrIP()).Handler())

	api := groupWithPrefix(r, apiBase)
	api.Use(chain...)
	{
		api.GET("/messages", h.ListMessages)
		api.POST("/messages", h.PostMessage)
		api.POST("/messages/:id/reaction", h.ReactToMessage)

		api.GET("/visitor", h.GetVisitor)
		api.POST("/visits", h.PostVisit)
		api.POST("/host-messages", h.PostHostMessage)
		api.POST("/visitor/country", h.ResolveCountry)

		api.GET(streamPath, h.Stream)
	}
}

// maxBodyBytes sizes the body cap so a maximal attachment still fits once
// base64 encoded in a JSON send.
func maxBodyBytes(attachment int64) int64 {
	if attachment <= 0 {
		attachment = services.DefaultMaxAttachmentBytes
	}
	return attachment*4/3 + 1<<20
}

// limitBody caps the request body size using http.MaxBytesReader. Requests
// exceeding the cap cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// frameAncestors lets the configured host pages embed the widget.
func frameAncestors(hostOrigins []string) []string {
	if len(hostOrigins) == 0 {
		return []string{"*"}
	}
	return append([]string{"'self'"}, hostOrigins...)
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
