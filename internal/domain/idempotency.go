package domain

import "time"

// Idempotency records the user message created for a (profile, key) pair so a
// retried send replays the original message instead of appending a second one
// and scheduling a second reply.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ProfileID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_profile_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_profile_key,priority:2"`
	MessageID int64     `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
