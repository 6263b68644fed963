// Package services – Session
//
// Session is the facade the HTTP layer talks to. It holds no state of its own:
// it validates input and delegates to the MessageStore, VisitorTracker and
// ReplyScheduler of one browser profile.
package services

import (
	"context"
	"strings"

	"github.com/tbourn/go-chat-widget/internal/domain"
)

// DefaultReactions is the reaction set offered by the widget.
var DefaultReactions = []string{"😀", "❤️", "😂", "😢", "👍", "👎"}

// FileUpload is a raw file attached to a send.
type FileUpload struct {
	Name string
	Data []byte
}

// Session composes the core components of one profile.
type Session struct {
	ProfileID string
	Messages  *MessageStore
	Visitor   *VisitorTracker
	Replies   *ReplyScheduler
	Events    *Bus

	// Reactions is the accepted reaction set; nil accepts DefaultReactions.
	Reactions map[string]struct{}
}

// ReactionSet builds a lookup set from a list, dropping blanks.
func ReactionSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, r := range list {
		if r = strings.TrimSpace(r); r != "" {
			out[r] = struct{}{}
		}
	}
	return out
}

// SendMessage appends a user message and schedules its reply. The message is
// persisted before the reply is scheduled. A send with blank text and no file
// returns ErrEmptyMessage and changes nothing.
func (s *Session) SendMessage(ctx context.Context, text string, file *FileUpload) (domain.Message, error) {
	var att *domain.Attachment
	if file != nil {
		a, err := s.Messages.AttachFile(file.Data, file.Name)
		if err != nil {
			return domain.Message{}, err
		}
		att = &a
	}
	m, err := s.Messages.AppendUserMessage(ctx, text, att)
	if err != nil {
		return domain.Message{}, err
	}
	s.Replies.ScheduleReply(ctx, m)
	return m, nil
}

// ReactTo toggles emoji on message id.
func (s *Session) ReactTo(ctx context.Context, id int64, emoji string) (domain.Message, error) {
	emoji = strings.TrimSpace(emoji)
	allowed := s.Reactions
	if allowed == nil {
		allowed = ReactionSet(DefaultReactions)
	}
	if _, ok := allowed[emoji]; !ok {
		return domain.Message{}, ErrUnsupportedReaction
	}
	return s.Messages.ToggleReaction(ctx, id, emoji)
}

// OnNavigate records a page visit of the widget's own document.
func (s *Session) OnNavigate(ctx context.Context, url string) (bool, error) {
	return s.Visitor.TrackPageVisit(ctx, url)
}

// OnHostMessage parses a raw cross-frame envelope and forwards recognised
// page notifications to the visitor tracker.
func (s *Session) OnHostMessage(ctx context.Context, origin string, raw []byte) (bool, error) {
	msg, err := domain.ParseHostMessage(origin, raw)
	if err != nil {
		hostMessages.WithLabelValues("unknown").Inc()
		return false, ErrUnknownEnvelope
	}
	return s.Visitor.OnExternalPageNotification(ctx, msg)
}

// ResolveCountry resolves the visitor's country from the client address if
// it is not known yet.
func (s *Session) ResolveCountry(ctx context.Context, clientIP string) (string, bool) {
	return s.Visitor.ResolveCountry(ctx, clientIP)
}

// History returns the message log in display order.
func (s *Session) History() []domain.Message { return s.Messages.Messages() }

// VisitorRecord returns a snapshot of the visitor record.
func (s *Session) VisitorRecord() domain.VisitorRecord { return s.Visitor.Snapshot() }

// PendingReplies reports replies scheduled but not yet appended; the widget
// shows a typing indicator while it is non-zero.
func (s *Session) PendingReplies() int { return s.Replies.Pending() }

// Subscribe streams the session's events until cancel is called.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	return s.Events.Subscribe(buffer)
}
