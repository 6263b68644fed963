package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/tbourn/go-chat-widget/internal/domain"
)

func TestAdapter_RoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(NewMemoryBackend())

	in := []domain.Message{
		{ID: 1, Sender: domain.SenderBot, Text: "Hi!", Timestamp: "09:00 AM"},
		{ID: 2, Sender: domain.SenderUser, Text: "hello", Timestamp: "09:01 AM", Read: true, Reaction: "👍"},
		{ID: 3, Sender: domain.SenderUser, Attachment: &domain.Attachment{Data: "data:text/plain;base64,aGk=", FileName: "a.txt"}, Timestamp: "09:02 AM"},
	}
	if err := a.Write(ctx, KeyMessages, in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var out []domain.Message
	if !a.Read(ctx, KeyMessages, &out) {
		t.Fatalf("expected Read to find the log")
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestAdapter_MissingIsAbsent(t *testing.T) {
	a := NewAdapter(NewMemoryBackend())
	var rec domain.VisitorRecord
	if a.Read(context.Background(), KeyVisitor, &rec) {
		t.Fatalf("expected absent for a missing key")
	}
}

func TestAdapter_CorruptEntryIsAbsentAndDstUntouched(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	a := NewAdapter(b)

	cases := map[string]string{
		"garbage":    "{not json",
		"null":       "null",
		"empty":      "",
		"wrong type": `{"visitedPages":"nope","visitorCount":3}`,
	}
	for name, raw := range cases {
		_ = b.Save(ctx, KeyVisitor, []byte(raw))
		rec := domain.VisitorRecord{Country: "GR", VisitorCount: 7}
		if a.Read(ctx, KeyVisitor, &rec) {
			t.Fatalf("%s: expected absent for corrupt entry", name)
		}
		if rec.Country != "GR" || rec.VisitorCount != 7 {
			t.Fatalf("%s: dst modified by failed read: %+v", name, rec)
		}
	}
}

func TestAdapter_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	root := NewAdapter(b)
	p1 := root.WithPrefix(ProfilePrefix("one"))
	p2 := root.WithPrefix(ProfilePrefix("two"))

	if err := p1.Mark(ctx, KeyVisited); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if ok, err := p1.Has(ctx, KeyVisited); !ok || err != nil {
		t.Fatalf("expected marker in profile one: %v %v", ok, err)
	}
	in2, _ := p2.Has(ctx, KeyVisited)
	inRoot, _ := root.Has(ctx, KeyVisited)
	if in2 || inRoot {
		t.Fatalf("marker leaked outside its profile")
	}

	keys, _ := b.Keys(ctx, "profile/one/")
	if len(keys) != 1 || keys[0] != "profile/one/visitorHasVisited" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestAdapter_WriteFailureIsReported(t *testing.T) {
	b := NewMemoryBackend()
	b.FailSaves = errors.New("quota exceeded")
	a := NewAdapter(b)

	if err := a.Write(context.Background(), KeyVisitor, domain.VisitorRecord{}); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestAdapter_HasSurfacesReadErrors(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	a := NewAdapter(b)
	if err := a.Mark(ctx, KeyVisited); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	b.FailLoads = map[string]error{KeyVisited: errors.New("database is locked")}
	ok, err := a.Has(ctx, KeyVisited)
	if err == nil || ok {
		t.Fatalf("read error must not look like absent or present: ok=%v err=%v", ok, err)
	}

	b.FailLoads = nil
	if ok, err := a.Has(ctx, KeyMessages); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(OpenOptions{Driver: "redis"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
