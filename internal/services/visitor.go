// Package services – VisitorTracker
//
// VisitorTracker exclusively owns the visitor record of one session: visited
// pages, resolved country and the one-time visitor count. Page visits are
// deduplicated by a configurable policy and every accepted visit persists the
// whole record.
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-widget/internal/clock"
	"github.com/tbourn/go-chat-widget/internal/domain"
	"github.com/tbourn/go-chat-widget/internal/geo"
	"github.com/tbourn/go-chat-widget/internal/storage"
)

// DedupPolicy decides whether a page visit repeats the history.
type DedupPolicy string

const (
	// DedupDwell drops a visit to the same page as the last entry unless more
	// than the dwell window has passed since that entry.
	DedupDwell DedupPolicy = "dwell"
	// DedupEver drops a visit to any page already present in the history.
	DedupEver DedupPolicy = "ever"
)

// DefaultDwellWindow is the dwell window used when none is configured.
const DefaultDwellWindow = 10 * time.Second

// VisitorTracker maintains the visitor record of one session.
type VisitorTracker struct {
	Store   *storage.Adapter
	Clock   clock.Clock
	Locator geo.Locator
	Events  *Bus

	Dedup  DedupPolicy
	Window time.Duration
	// AllowedOrigins lists the host origins whose cross-frame messages are
	// accepted. Empty accepts any origin.
	AllowedOrigins []string

	mu        sync.Mutex
	rec       domain.VisitorRecord
	visited   bool
	resolving int
}

func (v *VisitorTracker) now() time.Time {
	if v.Clock == nil {
		return time.Now().UTC()
	}
	return v.Clock.Now().UTC()
}

// Load reads the record from storage, defaulting to an empty one.
func (v *VisitorTracker) Load(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var rec domain.VisitorRecord
	if !v.Store.Read(ctx, storage.KeyVisitor, &rec) {
		rec = domain.VisitorRecord{}
	}
	if rec.VisitedPages == nil {
		rec.VisitedPages = []domain.PageVisit{}
	}
	v.rec = rec
	visited, err := v.Store.Has(ctx, storage.KeyVisited)
	if err != nil {
		log.Warn().Err(err).Msg("visitor_marker_read_failed")
	}
	v.visited = visited
}

// RecordFirstVisit increments the visitor count the first time it runs for a
// profile and sets the has-visited marker. Later calls, in this process or
// after a reload, are no-ops. It reports whether the count was incremented.
// When the marker cannot be read the visit is not counted.
func (v *VisitorTracker) RecordFirstVisit(ctx context.Context) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.visited {
		return false
	}
	visited, err := v.Store.Has(ctx, storage.KeyVisited)
	if err != nil {
		log.Warn().Err(err).Msg("visitor_marker_read_failed")
		return false
	}
	if visited {
		v.visited = true
		return false
	}
	v.rec.VisitorCount++
	v.visited = true
	v.persistLocked(ctx)
	if err := v.Store.Mark(ctx, storage.KeyVisited); err != nil {
		storageWriteFailures.WithLabelValues(storage.KeyVisited).Inc()
		log.Warn().Err(err).Msg("visitor_marker_persist_failed")
	}
	v.publishLocked()
	return true
}

// ResolveCountry looks the country of clientIP up once. A non-public
// clientIP falls back to the server's public IP (see geo.Resolve). When the
// country is already known, or no locator is configured, it returns
// immediately. The lock is not held during the network calls, so concurrent
// callers may both fetch; they converge on the same value. Failures are
// logged and leave the country unset; nothing is retried.
func (v *VisitorTracker) ResolveCountry(ctx context.Context, clientIP string) (string, bool) {
	v.mu.Lock()
	if v.rec.Country != "" {
		c := v.rec.Country
		v.mu.Unlock()
		return c, true
	}
	if v.Locator == nil {
		v.mu.Unlock()
		return "", false
	}
	v.resolving++
	v.mu.Unlock()

	ctx, span := otel.Tracer("services/VisitorTracker").Start(ctx, "ResolveCountry")
	defer span.End()

	country, err := geo.Resolve(ctx, v.Locator, clientIP)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.resolving--
	if err != nil {
		geoLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("country_lookup_failed")
		return "", false
	}
	geoLookups.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.String("visitor.country", country))
	if v.rec.Country == "" {
		v.rec.Country = country
		v.persistLocked(ctx)
		v.publishLocked()
	}
	return v.rec.Country, true
}

// CountryPending reports whether a country lookup is in flight.
func (v *VisitorTracker) CountryPending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolving > 0
}

// TrackPageVisit appends {url, now} unless the dedup policy judges it a
// repeat. It reports whether an entry was appended.
func (v *VisitorTracker) TrackPageVisit(ctx context.Context, url string) (bool, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return false, ErrInvalidURL
	}

	ctx, span := otel.Tracer("services/VisitorTracker").Start(ctx, "TrackPageVisit",
		trace.WithAttributes(attribute.String("page.url", url)),
	)
	defer span.End()

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if v.isDuplicateLocked(url, now) {
		pageVisits.WithLabelValues("duplicate").Inc()
		return false, nil
	}
	v.rec.VisitedPages = append(v.rec.VisitedPages, domain.PageVisit{Page: url, Time: now})
	v.persistLocked(ctx)
	pageVisits.WithLabelValues("appended").Inc()
	v.publishLocked()
	return true, nil
}

func (v *VisitorTracker) isDuplicateLocked(url string, now time.Time) bool {
	if v.Dedup == DedupEver {
		for _, p := range v.rec.VisitedPages {
			if p.Page == url {
				return true
			}
		}
		return false
	}

	last, ok := v.rec.LastVisit()
	if !ok || last.Page != url {
		return false
	}
	window := v.Window
	if window <= 0 {
		window = DefaultDwellWindow
	}
	return now.Sub(last.Time) <= window
}

// OnExternalPageNotification handles a parsed cross-frame message. Only a
// PAGE_URL envelope from an accepted origin is tracked; anything else returns
// ErrUnknownEnvelope or ErrOriginRejected without touching the record.
func (v *VisitorTracker) OnExternalPageNotification(ctx context.Context, msg domain.HostMessage) (bool, error) {
	if msg.Kind != domain.HostMessagePageURL {
		hostMessages.WithLabelValues("unknown").Inc()
		return false, ErrUnknownEnvelope
	}
	if !v.originAllowed(msg.Origin) {
		hostMessages.WithLabelValues("origin_rejected").Inc()
		log.Debug().Str("origin", msg.Origin).Msg("host_message_origin_rejected")
		return false, ErrOriginRejected
	}
	hostMessages.WithLabelValues("accepted").Inc()
	return v.TrackPageVisit(ctx, msg.URL)
}

// originAllowed compares origins case-insensitively, ignoring a trailing
// slash. With an allow-list configured, a missing origin is rejected.
func (v *VisitorTracker) originAllowed(origin string) bool {
	if len(v.AllowedOrigins) == 0 {
		return true
	}
	o := normalizeOrigin(origin)
	if o == "" {
		return false
	}
	for _, a := range v.AllowedOrigins {
		if normalizeOrigin(a) == o {
			return true
		}
	}
	return false
}

func normalizeOrigin(s string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), "/"))
}

// Snapshot returns a deep copy of the current record.
func (v *VisitorTracker) Snapshot() domain.VisitorRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rec.Clone()
}

func (v *VisitorTracker) persistLocked(ctx context.Context) {
	if err := v.Store.Write(ctx, storage.KeyVisitor, v.rec); err != nil {
		storageWriteFailures.WithLabelValues(storage.KeyVisitor).Inc()
		log.Warn().Err(err).Msg("visitor_record_persist_failed")
	}
}

func (v *VisitorTracker) publishLocked() {
	snap := v.rec.Clone()
	v.Events.Publish(Event{Type: EventVisitorUpdated, Visitor: &snap})
}
