package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/rs/zerolog/log"
)

// Adapter reads and writes JSON documents through a Backend.
//
// Read never fails: a missing key, a backend error or undecodable content all
// report "absent" so the caller can fall back to its own default. Write
// reports failures; the caller's in-memory state stays authoritative until a
// later write succeeds.
type Adapter struct {
	Backend Backend
	Prefix  string
}

// NewAdapter returns an Adapter over b with no key prefix.
func NewAdapter(b Backend) *Adapter {
	return &Adapter{Backend: b}
}

// WithPrefix returns an Adapter sharing the same backend whose keys are all
// namespaced under prefix.
func (a *Adapter) WithPrefix(prefix string) *Adapter {
	return &Adapter{Backend: a.Backend, Prefix: a.Prefix + prefix}
}

// ProfilePrefix is the key namespace of one browser profile.
func ProfilePrefix(profileID string) string {
	return "profile/" + profileID + "/"
}

func (a *Adapter) key(k string) string { return a.Prefix + k }

// Read decodes the document stored under key into dst and reports whether it
// was present and well formed. dst is left untouched when Read returns false.
func (a *Adapter) Read(ctx context.Context, key string, dst any) bool {
	raw, err := a.Backend.Load(ctx, a.key(key))
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", a.key(key)).Msg("storage_read_failed")
		return false
	}
	if err := decodeInto(raw, dst); err != nil {
		log.Warn().Err(err).Str("key", a.key(key)).Msg("storage_corrupt_entry")
		return false
	}
	return true
}

// decodeInto unmarshals into a scratch value first so a partial decode never
// leaks into dst.
func decodeInto(raw []byte, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("destination must be a non-nil pointer")
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errors.New("empty document")
	}
	scratch := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(raw, scratch.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(scratch.Elem())
	return nil
}

// Write encodes v and overwrites key with it.
func (a *Adapter) Write(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return a.Backend.Save(ctx, a.key(key), raw)
}

// Has reports whether key holds any value at all, regardless of content.
// Only ErrNotFound counts as absent; other backend errors are returned.
func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	_, err := a.Backend.Load(ctx, a.key(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Mark stores a presence-only sentinel under key.
func (a *Adapter) Mark(ctx context.Context, key string) error {
	return a.Backend.Save(ctx, a.key(key), []byte("true"))
}

// Raw returns the stored bytes for key without decoding.
func (a *Adapter) Raw(ctx context.Context, key string) ([]byte, error) {
	return a.Backend.Load(ctx, a.key(key))
}
