// Package services – ReplyScheduler
//
// ReplyScheduler produces exactly one synthetic bot reply per accepted user
// message, Delay after the send. Replies are tasks on a shared schedule.Queue,
// so rapid sends are answered in send order and nothing is ever coalesced or
// cancelled.
package services

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-widget/internal/domain"
	"github.com/tbourn/go-chat-widget/internal/replies"
	"github.com/tbourn/go-chat-widget/internal/schedule"
)

// DefaultReplyDelay is the delay used when none is configured.
const DefaultReplyDelay = time.Second

// ReplyScheduler schedules bot replies for one session.
type ReplyScheduler struct {
	Queue     *schedule.Queue
	Responder replies.Responder
	Messages  *MessageStore
	Events    *Bus
	Delay     time.Duration

	pending atomic.Int64
}

// ScheduleReply captures the normalised text of m and arranges for the reply
// to be appended after the delay. It must be called after m is persisted.
func (r *ReplyScheduler) ScheduleReply(ctx context.Context, m domain.Message) {
	_, span := otel.Tracer("services/ReplyScheduler").Start(ctx, "ScheduleReply",
		trace.WithAttributes(attribute.Int64("message.id", m.ID)),
	)
	defer span.End()

	text := replies.Normalize(m.Text)
	delay := r.Delay
	if delay <= 0 {
		delay = DefaultReplyDelay
	}
	// The reply outlives the request that triggered it.
	bg := context.WithoutCancel(ctx)

	n := int(r.pending.Add(1))
	repliesScheduled.Inc()
	r.Events.Publish(Event{Type: EventTyping, Pending: &n})

	r.Queue.Schedule(delay, func() {
		reply := r.Responder.Reply(text)
		r.Messages.AppendBotMessage(bg, reply)
		left := int(r.pending.Add(-1))
		r.Events.Publish(Event{Type: EventTyping, Pending: &left})
	})
}

// Pending returns the number of scheduled replies that have not fired.
func (r *ReplyScheduler) Pending() int {
	return int(r.pending.Load())
}
