// Package services holds the widget's session core: the message store, the
// visitor tracker, the reply scheduler and the session facade composing them.
// This file centralizes the service-level error values so that handlers can
// translate them into status codes.
//
// None of these errors leave state half-changed: an operation that returns
// one of them has made no mutation.
package services

import "errors"

// Message errors.
var (
	// ErrEmptyMessage is returned when a send carries neither text (after
	// trimming) nor an attachment.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when message text exceeds the configured limit.
	ErrTooLong = errors.New("message too long")

	// ErrMessageNotFound indicates that no message has the requested id.
	ErrMessageNotFound = errors.New("message not found")

	// ErrUnsupportedReaction is returned for an emoji outside the allowed set.
	ErrUnsupportedReaction = errors.New("reaction not supported")

	// ErrAttachmentTooLarge is returned when a file exceeds the size cap.
	ErrAttachmentTooLarge = errors.New("attachment too large")

	// ErrEmptyFileName is returned when an attachment has no file name.
	ErrEmptyFileName = errors.New("attachment file name is empty")
)

// Visitor errors.
var (
	// ErrInvalidURL is returned when a page visit carries a blank URL.
	ErrInvalidURL = errors.New("page url is empty")

	// ErrUnknownEnvelope is returned for cross-frame messages whose shape is
	// not recognised. Callers are expected to ignore it.
	ErrUnknownEnvelope = errors.New("unrecognised host message")

	// ErrOriginRejected is returned for cross-frame messages from an origin
	// outside the allow-list. Callers are expected to ignore it.
	ErrOriginRejected = errors.New("host message origin rejected")
)

// ErrInvalidProfile is returned for a malformed profile identifier.
var ErrInvalidProfile = errors.New("invalid profile id")
