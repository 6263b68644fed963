// Package services – MessageStore
//
// MessageStore exclusively owns a session's ordered message log. Every
// mutation happens under its lock and is persisted before the lock is
// released, so appends are stored in call order. A failed persist is logged
// and counted; the in-memory log stays authoritative until the next
// successful write.
package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-widget/internal/clock"
	"github.com/tbourn/go-chat-widget/internal/domain"
	"github.com/tbourn/go-chat-widget/internal/storage"
)

// TimestampLayout renders the time of day stored on each message.
const TimestampLayout = "03:04 PM"

// DefaultGreeting seeds a log that has never been stored.
const DefaultGreeting = "👋 Hi! How can we help?"

// DefaultMaxAttachmentBytes caps attachments when no limit is configured.
const DefaultMaxAttachmentBytes int64 = 5 << 20

// MessageStore is the ordered message log of one session.
type MessageStore struct {
	Store  *storage.Adapter
	Clock  clock.Clock
	Events *Bus

	// Greeting seeds an absent log; empty selects DefaultGreeting.
	Greeting string
	// MaxAttachmentBytes caps AttachFile input; <= 0 selects the default.
	MaxAttachmentBytes int64
	// MaxTextRunes caps message text; 0 disables the check.
	MaxTextRunes int

	mu     sync.Mutex
	log    []domain.Message
	nextID int64
	rev    uint64
}

func (s *MessageStore) now() string {
	c := s.Clock
	if c == nil {
		c = clock.Real{}
	}
	return c.Now().Format(TimestampLayout)
}

// Load reads the log from storage. An absent or corrupt log is replaced by
// a single bot greeting, which is persisted.
func (s *MessageStore) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored []domain.Message
	if s.Store.Read(ctx, storage.KeyMessages, &stored) {
		s.log = stored
	} else {
		greeting := s.Greeting
		if greeting == "" {
			greeting = DefaultGreeting
		}
		s.log = []domain.Message{{
			ID:        1,
			Sender:    domain.SenderBot,
			Text:      greeting,
			Timestamp: s.now(),
		}}
		s.persistLocked(ctx)
	}

	s.nextID = 1
	for _, m := range s.log {
		if m.ID >= s.nextID {
			s.nextID = m.ID + 1
		}
	}
}

// AppendUserMessage appends a user message with read=false. It returns
// ErrEmptyMessage, and changes nothing, when text is blank and att is nil.
func (s *MessageStore) AppendUserMessage(ctx context.Context, text string, att *domain.Attachment) (domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageStore").Start(ctx, "AppendUserMessage",
		trace.WithAttributes(
			attribute.Bool("attachment", att != nil),
		),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" && att == nil {
		return domain.Message{}, ErrEmptyMessage
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes {
		return domain.Message{}, ErrTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := domain.Message{
		ID:         s.nextID,
		Sender:     domain.SenderUser,
		Text:       text,
		Attachment: att,
		Timestamp:  s.now(),
	}
	s.nextID++
	s.log = append(s.log, m)
	s.persistLocked(ctx)

	messagesCreated.WithLabelValues(string(domain.SenderUser)).Inc()
	s.Events.Publish(Event{Type: EventMessageCreated, Message: &m})
	return m, nil
}

// AppendBotMessage appends a bot message and, in the same step, marks every
// unread user message as read. It returns the new message and the ids whose
// read flag flipped.
func (s *MessageStore) AppendBotMessage(ctx context.Context, text string) (domain.Message, []int64) {
	ctx, span := otel.Tracer("services/MessageStore").Start(ctx, "AppendBotMessage")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	m := domain.Message{
		ID:        s.nextID,
		Sender:    domain.SenderBot,
		Text:      text,
		Timestamp: s.now(),
	}
	s.nextID++

	var flipped []int64
	for i := range s.log {
		if s.log[i].Unread() {
			s.log[i].Read = true
			flipped = append(flipped, s.log[i].ID)
		}
	}
	s.log = append(s.log, m)
	s.persistLocked(ctx)

	messagesCreated.WithLabelValues(string(domain.SenderBot)).Inc()
	s.Events.Publish(Event{Type: EventMessageCreated, Message: &m})
	if len(flipped) > 0 {
		s.Events.Publish(Event{Type: EventMessagesRead, IDs: flipped})
	}
	span.SetAttributes(attribute.Int("read.flipped", len(flipped)))
	return m, flipped
}

// ToggleReaction sets emoji on message id, or clears it when it is already
// the current reaction. The message is replaced at its index by an updated
// copy. An unknown id returns ErrMessageNotFound and changes nothing.
func (s *MessageStore) ToggleReaction(ctx context.Context, id int64, emoji string) (domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageStore").Start(ctx, "ToggleReaction",
		trace.WithAttributes(attribute.Int64("message.id", id)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return domain.Message{}, ErrMessageNotFound
	}
	updated := s.log[idx]
	if updated.Reaction == emoji {
		updated.Reaction = ""
	} else {
		updated.Reaction = emoji
	}
	s.log[idx] = updated
	s.persistLocked(ctx)

	s.Events.Publish(Event{Type: EventMessageUpdated, Message: &updated})
	return updated, nil
}

// AttachFile encodes raw into a data URL attachment. The MIME type is
// sniffed from the content.
func (s *MessageStore) AttachFile(raw []byte, fileName string) (domain.Attachment, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return domain.Attachment{}, ErrEmptyFileName
	}
	limit := s.MaxAttachmentBytes
	if limit <= 0 {
		limit = DefaultMaxAttachmentBytes
	}
	if int64(len(raw)) > limit {
		return domain.Attachment{}, fmt.Errorf("%w: %s exceeds %s",
			ErrAttachmentTooLarge,
			humanize.Bytes(uint64(len(raw))),
			humanize.Bytes(uint64(limit)))
	}

	mime := mimetype.Detect(raw).String()
	return domain.Attachment{
		Data:     "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw),
		FileName: fileName,
	}, nil
}

// Messages returns a copy of the log in display order.
func (s *MessageStore) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.log...)
}

// Get returns the message with the given id.
func (s *MessageStore) Get(id int64) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.log[idx], true
	}
	return domain.Message{}, false
}

// Len reports the number of messages in the log.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

func (s *MessageStore) indexLocked(id int64) int {
	for i := range s.log {
		if s.log[i].ID == id {
			return i
		}
	}
	return -1
}

// Revision changes every time the log is mutated.
func (s *MessageStore) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

func (s *MessageStore) persistLocked(ctx context.Context) {
	s.rev++
	if err := s.Store.Write(ctx, storage.KeyMessages, s.log); err != nil {
		storageWriteFailures.WithLabelValues(storage.KeyMessages).Inc()
		log.Warn().Err(err).Int("messages", len(s.log)).Msg("message_log_persist_failed")
	}
}
