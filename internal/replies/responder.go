package replies

import (
	"fmt"
	"strings"
)

// Reply policies.
const (
	PolicyKeyword = "keyword"
	PolicyAck     = "ack"
)

// DefaultAck is the fixed acknowledgment of the ack policy.
const DefaultAck = "Thanks for your message!"

// Responder turns a user message into the bot's reply text.
type Responder interface {
	Reply(text string) string
}

// Keyword answers from a Table: exact phrase, then (when FuzzyThreshold > 0)
// the closest phrase scoring at least the threshold, then the fallback.
type Keyword struct {
	Table          *Table
	FuzzyThreshold float64
}

func (k Keyword) Reply(text string) string {
	if r, ok := k.Table.Lookup(text); ok {
		return r
	}
	if k.FuzzyThreshold > 0 {
		if e, score, ok := k.Table.Closest(text); ok && score >= k.FuzzyThreshold {
			return e.Response
		}
	}
	return k.Table.Fallback()
}

// Ack ignores the input and always returns the same text.
type Ack struct {
	Text string
}

func (a Ack) Reply(string) string {
	if a.Text == "" {
		return DefaultAck
	}
	return a.Text
}

// New selects a responder by policy name. A nil table selects Default().
func New(policy string, table *Table, fuzzyThreshold float64) (Responder, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case PolicyKeyword, "":
		if table == nil {
			table = Default()
		}
		return Keyword{Table: table, FuzzyThreshold: fuzzyThreshold}, nil
	case PolicyAck:
		return Ack{}, nil
	default:
		return nil, fmt.Errorf("unknown reply policy %q", policy)
	}
}
