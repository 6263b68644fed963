package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tbourn/go-chat-widget/internal/domain"
	"github.com/tbourn/go-chat-widget/internal/storage"
)

func TestLoad_SeedsGreetingWhenAbsent(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)

	got := s.Messages()
	if len(got) != 1 || got[0].ID != 1 || got[0].Sender != domain.SenderBot || got[0].Text != DefaultGreeting {
		t.Fatalf("unexpected seed: %+v", got)
	}
	if got[0].Timestamp != "09:41 PM" {
		t.Fatalf("unexpected timestamp %q", got[0].Timestamp)
	}
	if ok, _ := f.store.Has(context.Background(), storage.KeyMessages); !ok {
		t.Fatalf("seeded log not persisted")
	}
}

func TestLoad_CorruptLogFallsBackToSeed(t *testing.T) {
	f := newFixture(t)
	_ = f.backend.Save(context.Background(), storage.KeyMessages, []byte("{broken"))

	s := f.messages(t)
	if s.Len() != 1 {
		t.Fatalf("expected seeded log after corrupt entry, got %d", s.Len())
	}
}

func TestAppendUserMessage_GrowsByOneUnread(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)
	ctx := context.Background()

	before := s.Len()
	m, err := s.AppendUserMessage(ctx, "  hello  ", nil)
	if err != nil {
		t.Fatalf("AppendUserMessage: %v", err)
	}
	if s.Len() != before+1 {
		t.Fatalf("expected log to grow by 1, got %d -> %d", before, s.Len())
	}
	if m.Read || m.Sender != domain.SenderUser || m.Text != "hello" || m.ID != 2 {
		t.Fatalf("unexpected message: %+v", m)
	}

	att := &domain.Attachment{Data: "data:image/png;base64,AA==", FileName: "a.png"}
	m2, err := s.AppendUserMessage(ctx, "", att)
	if err != nil {
		t.Fatalf("attachment-only send: %v", err)
	}
	if m2.Attachment == nil || m2.Read || m2.ID != 3 {
		t.Fatalf("unexpected attachment message: %+v", m2)
	}
}

func TestAppendUserMessage_EmptyIsNoOp(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)

	before := s.Messages()
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.AppendUserMessage(context.Background(), text, nil); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage for %q, got %v", text, err)
		}
	}
	if !reflect.DeepEqual(before, s.Messages()) {
		t.Fatalf("empty send changed the log")
	}
}

func TestAppendUserMessage_TooLong(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)
	s.MaxTextRunes = 5

	if _, err := s.AppendUserMessage(context.Background(), "γειά σου", nil); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("rejected send changed the log")
	}
}

func TestAppendBotMessage_FlipsUnreadUserMessagesOnly(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)
	ctx := context.Background()

	u1, _ := s.AppendUserMessage(ctx, "one", nil)
	u2, _ := s.AppendUserMessage(ctx, "two", nil)

	bot, flipped := s.AppendBotMessage(ctx, "reply")
	if bot.Sender != domain.SenderBot || bot.Read {
		t.Fatalf("unexpected bot message: %+v", bot)
	}
	if !reflect.DeepEqual(flipped, []int64{u1.ID, u2.ID}) {
		t.Fatalf("unexpected flipped ids: %v", flipped)
	}
	for _, m := range s.Messages() {
		if m.Sender == domain.SenderUser && !m.Read {
			t.Fatalf("user message %d still unread", m.ID)
		}
		if m.Sender == domain.SenderBot && m.Read {
			t.Fatalf("bot message %d was marked read", m.ID)
		}
	}

	if _, flipped := s.AppendBotMessage(ctx, "again"); len(flipped) != 0 {
		t.Fatalf("second bot message should flip nothing, got %v", flipped)
	}
}

func TestToggleReaction_PairAndReplace(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)
	ctx := context.Background()
	m, _ := s.AppendUserMessage(ctx, "hey", nil)

	got, err := s.ToggleReaction(ctx, m.ID, "👍")
	if err != nil || got.Reaction != "👍" {
		t.Fatalf("first toggle: %+v %v", got, err)
	}
	got, _ = s.ToggleReaction(ctx, m.ID, "👍")
	if got.Reaction != "" {
		t.Fatalf("second toggle should clear, got %q", got.Reaction)
	}

	_, _ = s.ToggleReaction(ctx, m.ID, "👍")
	got, _ = s.ToggleReaction(ctx, m.ID, "❤️")
	if got.Reaction != "❤️" {
		t.Fatalf("expected replacement reaction, got %q", got.Reaction)
	}
	stored, _ := s.Get(m.ID)
	if stored.Reaction != "❤️" {
		t.Fatalf("log not updated: %+v", stored)
	}
}

func TestToggleReaction_UnknownIDIsNoOp(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)
	before := s.Messages()

	if _, err := s.ToggleReaction(context.Background(), 999, "👍"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if !reflect.DeepEqual(before, s.Messages()) {
		t.Fatalf("unknown id changed the log")
	}
}

func TestMessages_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)

	out := s.Messages()
	out[0].Text = "mutated"
	if got, _ := s.Get(1); got.Text == "mutated" {
		t.Fatalf("caller mutation leaked into the log")
	}
}

func TestPersistence_RoundTripAndIDContinuity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.messages(t)
	_, _ = s.AppendUserMessage(ctx, "hello", nil)
	_, _ = s.AppendBotMessage(ctx, "hi")
	m, _ := s.AppendUserMessage(ctx, "react to me", nil)
	_, _ = s.ToggleReaction(ctx, m.ID, "😂")

	reloaded := f.messages(t)
	if !reflect.DeepEqual(s.Messages(), reloaded.Messages()) {
		t.Fatalf("reload mismatch:\n%+v\n%+v", s.Messages(), reloaded.Messages())
	}
	next, _ := reloaded.AppendUserMessage(ctx, "after reload", nil)
	if next.ID != m.ID+1 {
		t.Fatalf("expected id %d after reload, got %d", m.ID+1, next.ID)
	}
}

func TestPersistFailure_KeepsMemoryAuthoritative(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)
	f.backend.FailSaves = errors.New("disk full")

	m, err := s.AppendUserMessage(context.Background(), "still here", nil)
	if err != nil {
		t.Fatalf("storage failure must not surface: %v", err)
	}
	if got, ok := s.Get(m.ID); !ok || got.Text != "still here" {
		t.Fatalf("in-memory log lost the message")
	}

	f.backend.FailSaves = nil
	_, _ = s.AppendBotMessage(context.Background(), "ok")
	if reloaded := f.messages(t); reloaded.Len() != s.Len() {
		t.Fatalf("next successful write should store everything: %d vs %d", reloaded.Len(), s.Len())
	}
}

func TestAttachFile(t *testing.T) {
	f := newFixture(t)
	s := f.messages(t)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	a, err := s.AttachFile(png, " pic.png ")
	if err != nil {
		t.Fatalf("AttachFile: %v", err)
	}
	if a.FileName != "pic.png" || !strings.HasPrefix(a.Data, "data:image/png;base64,") {
		t.Fatalf("unexpected attachment: %+v", a)
	}

	txt, _ := s.AttachFile([]byte("plain words"), "notes.txt")
	if !strings.HasPrefix(txt.Data, "data:text/plain") {
		t.Fatalf("unexpected text attachment: %s", txt.Data)
	}

	if _, err := s.AttachFile(png, "  "); !errors.Is(err, ErrEmptyFileName) {
		t.Fatalf("expected ErrEmptyFileName, got %v", err)
	}

	s.MaxAttachmentBytes = 4
	_, err = s.AttachFile(png, "pic.png")
	if !errors.Is(err, ErrAttachmentTooLarge) {
		t.Fatalf("expected ErrAttachmentTooLarge, got %v", err)
	}
	if !strings.Contains(err.Error(), "4 B") {
		t.Fatalf("expected human readable limit in %q", err)
	}
}
