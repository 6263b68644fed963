package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-chat-widget/internal/clock"
	"github.com/tbourn/go-chat-widget/internal/replies"
	"github.com/tbourn/go-chat-widget/internal/schedule"
	"github.com/tbourn/go-chat-widget/internal/storage"
)

var epoch = time.Date(2024, 5, 1, 21, 41, 0, 0, time.UTC)

type fakeLocator struct {
	mu      sync.Mutex
	ip      string
	country string
	ipErr   error
	ctryErr error
	calls   int
	block   chan struct{}
	// countries answers Country for client addresses looked up directly.
	countries map[string]string
	asked     []string
}

func (f *fakeLocator) PublicIP(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.ip, f.ipErr
}

func (f *fakeLocator) Country(ctx context.Context, ip string) (string, error) {
	f.mu.Lock()
	f.asked = append(f.asked, ip)
	f.mu.Unlock()
	if c, ok := f.countries[ip]; ok {
		return c, f.ctryErr
	}
	if ip != f.ip {
		return "", errors.New("unexpected ip")
	}
	return f.country, f.ctryErr
}

func (f *fakeLocator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	backend *storage.MemoryBackend
	store   *storage.Adapter
	clock   *clock.Fake
	queue   *schedule.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := storage.NewMemoryBackend()
	fc := clock.NewFake(epoch)
	return &fixture{
		backend: b,
		store:   storage.NewAdapter(b),
		clock:   fc,
		queue:   schedule.New(fc),
	}
}

func (f *fixture) messages(t *testing.T) *MessageStore {
	t.Helper()
	s := &MessageStore{Store: f.store, Clock: f.clock}
	s.Load(context.Background())
	return s
}

func (f *fixture) visitor(t *testing.T, loc *fakeLocator) *VisitorTracker {
	t.Helper()
	v := &VisitorTracker{Store: f.store, Clock: f.clock}
	if loc != nil {
		v.Locator = loc
	}
	v.Load(context.Background())
	return v
}

func (f *fixture) session(t *testing.T) *Session {
	t.Helper()
	msgs := f.messages(t)
	bus := NewBus()
	msgs.Events = bus
	return &Session{
		ProfileID: "p1",
		Messages:  msgs,
		Visitor:   f.visitor(t, nil),
		Replies: &ReplyScheduler{
			Queue:     f.queue,
			Responder: replies.Keyword{Table: replies.Default()},
			Messages:  msgs,
			Events:    bus,
			Delay:     time.Second,
		},
		Events: bus,
	}
}
