package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-widget/internal/clock"
	"github.com/tbourn/go-chat-widget/internal/config"
	"github.com/tbourn/go-chat-widget/internal/geo"
	httpapi "github.com/tbourn/go-chat-widget/internal/http"
	"github.com/tbourn/go-chat-widget/internal/observability"
	"github.com/tbourn/go-chat-widget/internal/replies"
	"github.com/tbourn/go-chat-widget/internal/repo"
	"github.com/tbourn/go-chat-widget/internal/schedule"
	"github.com/tbourn/go-chat-widget/internal/services"
	"github.com/tbourn/go-chat-widget/internal/storage"
	"github.com/tbourn/go-chat-widget/internal/sysutil"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides PORT)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Port = sysutil.FirstNonEmpty(servePort, cfg.Port)

	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel_shutdown_failed")
		}
	}()

	backend, err := storage.Open(storage.OpenOptions{
		Driver:     cfg.Store.Driver,
		DBPath:     cfg.Store.DBPath,
		PebblePath: cfg.Store.PebblePath,
		Tracing:    cfg.OTEL.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn().Err(err).Msg("store_close_failed")
		}
	}()

	responder, err := buildResponder(cfg.Reply)
	if err != nil {
		return err
	}

	var locator geo.Locator
	if cfg.Geo.Enabled {
		locator = geo.NewHTTPLocator(cfg.Geo.IPURL, cfg.Geo.CountryURL, cfg.Geo.Timeout)
	}

	queue := schedule.New(clock.Real{})
	sessions := &services.Sessions{
		Store:     storage.NewAdapter(backend),
		Clock:     clock.Real{},
		Queue:     queue,
		Responder: responder,
		Locator:   locator,
		Options: services.SessionOptions{
			ReplyDelay:            cfg.Reply.Delay,
			Dedup:                 services.DedupPolicy(cfg.Visitor.DedupPolicy),
			DwellWindow:           cfg.Visitor.DwellWindow,
			AllowedOrigins:        cfg.Visitor.HostOrigins,
			Reactions:             cfg.Visitor.Reactions,
			MaxAttachmentBytes:    cfg.Visitor.MaxAttachmentBytes,
			MaxTextRunes:          cfg.Reply.MaxTextRunes,
			Greeting:              cfg.Reply.Greeting,
			ResolveCountryOnStart: locator != nil,
			IdleTTL:               cfg.SessionIdleTTL,
			MaxSessions:           cfg.MaxSessions,
		},
	}

	// The queue outlives the HTTP server so replies still pending at shutdown
	// are flushed before the store closes.
	queueCtx, stopQueue := context.WithCancel(context.Background())
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		queue.Run(queueCtx)
	}()

	var idemDB *gorm.DB
	if sb, ok := backend.(*storage.SQLiteBackend); ok {
		idemDB = sb.DB
		go purgeIdempotency(ctx, idemDB, purgeInterval)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{Sessions: sessions, IdempotencyDB: idemDB}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	log.Info().
		Str("addr", srv.Addr).
		Str("store", cfg.Store.Driver).
		Str("reply_policy", cfg.Reply.Policy).
		Bool("geo", locator != nil).
		Str("version", version).
		Msg("server_listening")

	serveErr := runServer(ctx, srv)

	stopQueue()
	<-queueDone
	sessions.Wait()
	log.Info().Int("profiles", len(sessions.Profiles())).Msg("server_stopped")
	return serveErr
}

func buildResponder(rc config.ReplyConfig) (replies.Responder, error) {
	table := replies.Default()
	if rc.ResponsesPath != "" {
		t, err := replies.LoadMarkdown(rc.ResponsesPath)
		if err != nil {
			return nil, fmt.Errorf("load responses: %w", err)
		}
		table = t
		log.Info().Str("path", rc.ResponsesPath).Int("entries", t.Len()).Msg("responses_loaded")
	}
	return replies.New(rc.Policy, table, rc.FuzzyThreshold)
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// purgeIdempotency deletes expired Idempotency-Key rows every interval until
// ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency_purge_failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("idempotency_purged")
			}
		}
	}
}
