// Package domain defines the widget's session data model: the message log,
// attachments, and the visitor record, plus the GORM rows used by the SQLite
// key/value backend. The message and visitor types are stored as JSON blobs;
// only KVEntry and Idempotency are mapped to tables.
package domain

import (
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool { return s == SenderUser || s == SenderBot }

// Attachment is a file carried by a message, encoded for storage.
//
// Fields:
//   - Data: a data URL ("data:<mime>;base64,<payload>").
//   - FileName: the original file name as supplied by the client.
type Attachment struct {
	Data     string `json:"data"`
	FileName string `json:"fileName"`
}

// Message is a single entry in a session's conversation log.
//
// Fields:
//   - ID: monotonically increasing within the session; defines display order.
//   - Sender: "user" or "bot".
//   - Text: optional when an Attachment is present.
//   - Attachment: optional file; a message may carry both text and a file.
//   - Timestamp: time of day captured at creation, e.g. "09:41 PM".
//   - Read: read receipt, meaningful for user messages only.
//   - Reaction: at most one emoji, empty when unset.
type Message struct {
	ID         int64       `json:"id"`
	Sender     Sender      `json:"sender"`
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  string      `json:"timestamp"`
	Read       bool        `json:"read"`
	Reaction   string      `json:"reaction,omitempty"`
}

// HasContent reports whether the message carries text or an attachment.
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Text) != "" || m.Attachment != nil
}

// Unread reports whether m is a user message still waiting for a reply.
func (m Message) Unread() bool { return m.Sender == SenderUser && !m.Read }

// PageVisit is one entry of the visited-pages history.
type PageVisit struct {
	Page string    `json:"page"`
	Time time.Time `json:"time"`
}

// VisitorRecord tracks page history, the resolved country, and the one-time
// visitor count for a browser profile.
type VisitorRecord struct {
	VisitedPages []PageVisit `json:"visitedPages"`
	Country      string      `json:"country,omitempty"`
	VisitorCount int         `json:"visitorCount"`
}

// Clone returns a deep copy safe to hand out of the owning tracker.
func (r VisitorRecord) Clone() VisitorRecord {
	out := r
	out.VisitedPages = append([]PageVisit(nil), r.VisitedPages...)
	if out.VisitedPages == nil {
		out.VisitedPages = []PageVisit{}
	}
	return out
}

// LastVisit returns the most recent page visit, if any.
func (r VisitorRecord) LastVisit() (PageVisit, bool) {
	if len(r.VisitedPages) == 0 {
		return PageVisit{}, false
	}
	return r.VisitedPages[len(r.VisitedPages)-1], true
}

// KVEntry is a durable key/value row backing the SQLite storage driver.
// Values are opaque JSON documents; the row has no knowledge of their shape.
type KVEntry struct {
	Key       string    `gorm:"column:storage_key;type:varchar(255);primaryKey"`
	Value     []byte    `gorm:"column:value;type:blob;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName returns the database table name for KVEntry.
func (KVEntry) TableName() string { return "kv_entries" }
