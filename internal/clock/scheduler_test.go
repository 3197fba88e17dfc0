package clock

import (
	"testing"

	"matchd/internal/capability"
)

func TestScheduleAtFiresOnTargetTick(t *testing.T) {
	s := NewScheduler(nil)
	var fired []capability.Tick
	s.ScheduleAt(s.Now()+2, func() { fired = append(fired, s.Now()) })

	s.Tick() // now=1
	if len(fired) != 0 {
		t.Fatalf("expected no callback on tick 1, got %v", fired)
	}
	s.Tick() // now=2
	if len(fired) != 1 || fired[0] != 2 {
		t.Fatalf("expected the callback to fire exactly once at tick 2, got %v", fired)
	}
}

func TestScheduleAtOrderingWithinSameTick(t *testing.T) {
	s := NewScheduler(nil)
	var order []int
	s.ScheduleAt(s.Now()+1, func() { order = append(order, 1) })
	s.ScheduleAt(s.Now()+1, func() { order = append(order, 2) })
	s.ScheduleAt(s.Now()+1, func() { order = append(order, 3) })

	s.Tick()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected callbacks to fire in scheduling order, got %v", order)
	}
}

func TestScheduleEveryRepeatsUntilCancelled(t *testing.T) {
	s := NewScheduler(nil)
	count := 0
	id := s.ScheduleEvery(2, func() { count++ })

	s.Tick() // 1: not due
	s.Tick() // 2: due
	s.Tick() // 3: not due
	s.Tick() // 4: due
	if count != 2 {
		t.Fatalf("expected 2 firings by tick 4, got %d", count)
	}

	s.Cancel(id)
	s.Tick() // 5
	s.Tick() // 6: would have fired again were it not cancelled
	if count != 2 {
		t.Fatalf("expected no further firings after Cancel, got %d", count)
	}
}

func TestPanicInCallbackIsIsolated(t *testing.T) {
	var logged bool
	s := NewScheduler(func(format string, args ...any) { logged = true })
	s.ScheduleAt(s.Now()+1, func() { panic("boom") })
	ranAfter := false
	s.ScheduleAt(s.Now()+1, func() { ranAfter = true })

	s.Tick()

	if !logged {
		t.Error("expected the panic to be logged")
	}
	if !ranAfter {
		t.Error("expected a sibling callback on the same tick to still run after a panicking one")
	}
}

func TestSubmitBridgesBackOntoTickGoroutine(t *testing.T) {
	s := NewScheduler(nil)
	done := make(chan struct{})
	var applied bool
	s.Submit(func() (any, error) { return 42, nil }, func(result any, err error) {
		applied = true
		close(done)
	})

	// Drain until the background goroutine's push lands in the bridge.
	for i := 0; i < 1000 && !applied; i++ {
		s.Tick()
		select {
		case <-done:
			i = 1000
		default:
		}
	}
	<-done
	if !applied {
		t.Error("expected Submit's apply callback to run via a Tick drain")
	}
}
