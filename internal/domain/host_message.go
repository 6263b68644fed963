package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// HostMessageKind tags the variants of a cross-frame envelope.
type HostMessageKind int

const (
	// HostMessageUnknown is any envelope whose type tag is not recognised.
	HostMessageUnknown HostMessageKind = iota
	// HostMessagePageURL reports the host page's current URL.
	HostMessagePageURL
)

// PageURLType is the wire tag of a page-URL notification.
const PageURLType = "PAGE_URL"

// ErrMalformedEnvelope is returned when the raw payload is not a JSON object.
var ErrMalformedEnvelope = errors.New("malformed host message")

// HostMessage is a parsed cross-frame notification posted to the widget by
// the page embedding it.
type HostMessage struct {
	Kind   HostMessageKind
	Origin string
	URL    string
}

type hostEnvelope struct {
	Type *string `json:"type"`
	URL  *string `json:"url"`
}

// ParseHostMessage decodes a raw envelope. A JSON object with an unknown or
// missing type tag parses to HostMessageUnknown; a PAGE_URL envelope without a
// string url also parses to HostMessageUnknown. Only non-object payloads
// return an error.
func ParseHostMessage(origin string, raw []byte) (HostMessage, error) {
	msg := HostMessage{Kind: HostMessageUnknown, Origin: strings.TrimSpace(origin)}

	var env hostEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return msg, ErrMalformedEnvelope
	}
	if env.Type == nil || *env.Type != PageURLType || env.URL == nil {
		return msg, nil
	}
	msg.Kind = HostMessagePageURL
	msg.URL = *env.URL
	return msg, nil
}
