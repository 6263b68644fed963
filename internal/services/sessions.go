// Package services – Sessions
//
// Sessions is the per-profile registry. Each browser profile gets its own
// Session whose storage keys live under storage.ProfilePrefix(profileID).
// A session is created and bootstrapped on first use: the log and visitor
// record are loaded, the first visit is recorded, and the country lookup is
// started in the background. Idle sessions are evicted from memory and
// rebuilt from storage when the profile returns.
package services

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-chat-widget/internal/clock"
	"github.com/tbourn/go-chat-widget/internal/geo"
	"github.com/tbourn/go-chat-widget/internal/replies"
	"github.com/tbourn/go-chat-widget/internal/schedule"
	"github.com/tbourn/go-chat-widget/internal/storage"
)

// SessionOptions configures every session created by a registry.
type SessionOptions struct {
	ReplyDelay         time.Duration
	Dedup              DedupPolicy
	DwellWindow        time.Duration
	AllowedOrigins     []string
	Reactions          []string
	MaxAttachmentBytes int64
	MaxTextRunes       int
	Greeting           string
	// ResolveCountryOnStart starts a background country lookup when a
	// session is bootstrapped.
	ResolveCountryOnStart bool
	// IdleTTL evicts sessions unused for this long; 0 keeps them.
	IdleTTL time.Duration
	// MaxSessions is a soft cap on sessions held in memory; 0 is unbounded.
	MaxSessions int
}

// Sessions hands out one Session per profile.
type Sessions struct {
	Store     *storage.Adapter
	Clock     clock.Clock
	Queue     *schedule.Queue
	Responder replies.Responder
	Locator   geo.Locator
	Options   SessionOptions

	mu        sync.Mutex
	byProfile map[string]*sessionEntry
	lastSweep time.Time
	bg        sync.WaitGroup
}

type sessionEntry struct {
	s        *Session
	init     sync.Once
	ready    atomic.Bool
	lastUsed time.Time
}

// sweepInterval bounds how often Get scans for idle sessions.
const sweepInterval = 30 * time.Second

// minIdleForCap is how long a session must be unused before the MaxSessions
// cap may evict it.
const minIdleForCap = time.Minute

var profileIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidProfileID reports whether id can be used as a profile identifier.
func ValidProfileID(id string) bool { return profileIDRE.MatchString(id) }

func (m *Sessions) now() time.Time {
	if m.Clock == nil {
		return time.Now()
	}
	return m.Clock.Now()
}

// Get returns the session of profileID, bootstrapping it on first use.
// clientIP is the caller's address, used for the background country lookup
// of a new session. Bootstrap runs outside the registry lock; concurrent
// callers for the same profile wait for it to finish.
func (m *Sessions) Get(ctx context.Context, profileID, clientIP string) (*Session, error) {
	if !ValidProfileID(profileID) {
		return nil, ErrInvalidProfile
	}
	now := m.now()

	m.mu.Lock()
	if m.byProfile == nil {
		m.byProfile = make(map[string]*sessionEntry)
	}
	e, ok := m.byProfile[profileID]
	if !ok {
		e = &sessionEntry{s: m.build(profileID)}
		m.byProfile[profileID] = e
		sessionsActive.Inc()
	}
	e.lastUsed = now
	m.evictLocked(now)
	m.mu.Unlock()

	e.init.Do(func() {
		m.bootstrap(ctx, e.s, clientIP)
		e.ready.Store(true)
	})
	return e.s, nil
}

// evictLocked drops sessions idle for longer than Options.IdleTTL and, when
// more than Options.MaxSessions are loaded, the least recently used ones
// idle for at least minIdleForCap. Sessions still bootstrapping, with
// pending replies, stream subscribers or a country lookup in flight are
// kept. Evicted state is already persisted and is reloaded on the next Get.
func (m *Sessions) evictLocked(now time.Time) {
	ttl := m.Options.IdleTTL
	limit := m.Options.MaxSessions
	overCap := limit > 0 && len(m.byProfile) > limit
	if !overCap && (ttl <= 0 || now.Sub(m.lastSweep) < sweepInterval) {
		return
	}
	m.lastSweep = now

	if ttl > 0 {
		for id, e := range m.byProfile {
			if now.Sub(e.lastUsed) >= ttl && evictable(e) {
				m.dropLocked(id)
			}
		}
	}
	for limit > 0 && len(m.byProfile) > limit {
		var (
			oldestID string
			oldest   time.Time
		)
		for id, e := range m.byProfile {
			if now.Sub(e.lastUsed) < minIdleForCap || !evictable(e) {
				continue
			}
			if oldestID == "" || e.lastUsed.Before(oldest) {
				oldestID, oldest = id, e.lastUsed
			}
		}
		if oldestID == "" {
			return
		}
		m.dropLocked(oldestID)
	}
}

func evictable(e *sessionEntry) bool {
	s := e.s
	return e.ready.Load() &&
		s.PendingReplies() == 0 &&
		s.Events.Subscribers() == 0 &&
		!s.Visitor.CountryPending()
}

func (m *Sessions) dropLocked(id string) {
	delete(m.byProfile, id)
	sessionsActive.Dec()
	log.Debug().Str("profile_id", id).Msg("session_evicted")
}

// Profiles returns the ids of the sessions loaded in memory.
func (m *Sessions) Profiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.byProfile))
	for id := range m.byProfile {
		out = append(out, id)
	}
	return out
}

// Wait blocks until background country lookups have finished.
func (m *Sessions) Wait() { m.bg.Wait() }

func (m *Sessions) build(profileID string) *Session {
	store := m.Store.WithPrefix(storage.ProfilePrefix(profileID))
	bus := NewBus()
	msgs := &MessageStore{
		Store:              store,
		Clock:              m.Clock,
		Events:             bus,
		Greeting:           m.Options.Greeting,
		MaxAttachmentBytes: m.Options.MaxAttachmentBytes,
		MaxTextRunes:       m.Options.MaxTextRunes,
	}
	reactions := m.Options.Reactions
	if len(reactions) == 0 {
		reactions = DefaultReactions
	}
	return &Session{
		ProfileID: profileID,
		Messages:  msgs,
		Visitor: &VisitorTracker{
			Store:          store,
			Clock:          m.Clock,
			Locator:        m.Locator,
			Events:         bus,
			Dedup:          m.Options.Dedup,
			Window:         m.Options.DwellWindow,
			AllowedOrigins: m.Options.AllowedOrigins,
		},
		Replies: &ReplyScheduler{
			Queue:     m.Queue,
			Responder: m.Responder,
			Messages:  msgs,
			Events:    bus,
			Delay:     m.Options.ReplyDelay,
		},
		Events:    bus,
		Reactions: ReactionSet(reactions),
	}
}

func (m *Sessions) bootstrap(ctx context.Context, s *Session, clientIP string) {
	s.Messages.Load(ctx)
	s.Visitor.Load(ctx)
	if s.Visitor.RecordFirstVisit(ctx) {
		log.Info().Str("profile_id", s.ProfileID).Msg("first_visit_recorded")
	}
	if m.Options.ResolveCountryOnStart && m.Locator != nil {
		bg := context.WithoutCancel(ctx)
		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			s.Visitor.ResolveCountry(bg, clientIP)
		}()
	}
}
