package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-chat-widget/internal/clock"
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestAdvance_FiresInDueThenScheduleOrder(t *testing.T) {
	fc := clock.NewFake(epoch)
	q := New(fc)

	var got []string
	q.Schedule(2*time.Second, func() { got = append(got, "late") })
	q.Schedule(time.Second, func() { got = append(got, "first") })
	q.Schedule(time.Second, func() { got = append(got, "second") })

	if n := q.Advance(999 * time.Millisecond); n != 0 {
		t.Fatalf("expected nothing due before 1s, ran %d", n)
	}
	if n := q.Advance(time.Millisecond); n != 2 {
		t.Fatalf("expected 2 tasks at 1s, ran %d", n)
	}
	if q.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", q.Pending())
	}
	q.Advance(time.Hour)

	want := []string{"first", "second", "late"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if !fc.Now().Equal(epoch.Add(time.Hour + time.Second)) {
		t.Fatalf("clock not at target: %v", fc.Now())
	}
}

func TestAdvance_SetsClockToDueTimeDuringTask(t *testing.T) {
	fc := clock.NewFake(epoch)
	q := New(fc)

	var seen time.Time
	q.Schedule(time.Second, func() { seen = fc.Now() })
	q.Advance(10 * time.Second)

	if !seen.Equal(epoch.Add(time.Second)) {
		t.Fatalf("task observed %v, want %v", seen, epoch.Add(time.Second))
	}
}

func TestRunDue_UsesCurrentClock(t *testing.T) {
	fc := clock.NewFake(epoch)
	q := New(fc)

	ran := 0
	q.Schedule(0, func() { ran++ })
	q.Schedule(time.Minute, func() { ran++ })

	if n := q.RunDue(); n != 1 || ran != 1 {
		t.Fatalf("expected only the zero-delay task, n=%d ran=%d", n, ran)
	}
	fc.Advance(time.Minute)
	if n := q.RunDue(); n != 1 || ran != 2 {
		t.Fatalf("expected second task after advancing, n=%d ran=%d", n, ran)
	}
}

func TestExecute_RecoversPanics(t *testing.T) {
	fc := clock.NewFake(epoch)
	q := New(fc)

	after := false
	q.Schedule(0, func() { panic("boom") })
	q.Schedule(0, func() { after = true })
	q.RunDue()

	if !after {
		t.Fatalf("task after a panicking task did not run")
	}
}

func TestRun_RealTimeAndDrainOnStop(t *testing.T) {
	q := New(clock.Real{})
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []int
	record := func(i int) func() {
		return func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}
	}

	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	fired := make(chan struct{})
	q.Schedule(5*time.Millisecond, func() { record(1)(); close(fired) })
	q.Schedule(time.Hour, record(2))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("short task never fired")
	}

	cancel()
	<-done

	// Scheduling after stop runs immediately.
	q.Schedule(time.Hour, record(3))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected firing order: %v", got)
	}
	if q.Pending() != 0 {
		t.Fatalf("expected empty queue after stop, got %d", q.Pending())
	}
}
