package main

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestEventQueue_FIFO tests that DrainAll returns events in push order.
func TestEventQueue_FIFO(t *testing.T) {
	q := NewEventQueue()

	q.Push(TurnEvent{Delta: 1})
	q.Push(PressEvent{})
	q.Push(TurnEvent{Delta: -1})

	drained := q.DrainAll()
	if len(drained) != 3 {
		t.Fatalf("expected 3 events, got %d", len(drained))
	}
	if turn, ok := drained[0].(TurnEvent); !ok || turn.Delta != 1 {
		t.Errorf("event 0: expected TurnEvent{+1}, got %#v", drained[0])
	}
	if _, ok := drained[1].(PressEvent); !ok {
		t.Errorf("event 1: expected PressEvent, got %#v", drained[1])
	}
	if turn, ok := drained[2].(TurnEvent); !ok || turn.Delta != -1 {
		t.Errorf("event 2: expected TurnEvent{-1}, got %#v", drained[2])
	}

	if q.Len() != 0 {
		t.Errorf("queue not empty after drain: len=%d", q.Len())
	}
	if again := q.DrainAll(); again != nil {
		t.Errorf("second drain returned %d events, want nil", len(again))
	}
}

// TestEventQueue_WakeSetByPush tests that a push wakes a waiter, and that a
// consumed wake is cleared.
func TestEventQueue_WakeSetByPush(t *testing.T) {
	q := NewEventQueue()
	ctx := context.Background()

	q.Push(TurnEvent{Delta: 1})

	if !q.WaitForWake(ctx, time.Second) {
		t.Fatal("expected wake after push")
	}
	// Signal is binary: a second wait with nothing pushed times out.
	if q.WaitForWake(ctx, 10*time.Millisecond) {
		t.Error("wake signal not cleared after being consumed")
	}
}

// TestEventQueue_WakeSurvivesDrain tests the race window: when a push lands
// and the consumer drains the event without waiting first, the wake stays set
// and the next wait returns immediately instead of stalling.
func TestEventQueue_WakeSurvivesDrain(t *testing.T) {
	q := NewEventQueue()

	q.Push(TurnEvent{Delta: 1})
	if got := len(q.DrainAll()); got != 1 {
		t.Fatalf("expected 1 drained event, got %d", got)
	}

	if !q.WaitForWake(context.Background(), 10*time.Millisecond) {
		t.Error("wake signal lost after drain")
	}
}

// TestEventQueue_CoalescedWakes tests that many pushes set the signal once;
// one wake plus one drain picks up all of them.
func TestEventQueue_CoalescedWakes(t *testing.T) {
	q := NewEventQueue()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		q.Push(TurnEvent{Delta: 1})
	}

	if !q.WaitForWake(ctx, time.Second) {
		t.Fatal("expected wake")
	}
	if got := len(q.DrainAll()); got != 10 {
		t.Errorf("expected 10 drained events, got %d", got)
	}
	if q.WaitForWake(ctx, 10*time.Millisecond) {
		t.Error("expected coalesced wakes to be consumed in one wait")
	}
}

// TestEventQueue_WaitTimeout tests that waiting on an idle queue returns
// false after the timeout.
func TestEventQueue_WaitTimeout(t *testing.T) {
	q := NewEventQueue()

	start := time.Now()
	if q.WaitForWake(context.Background(), 20*time.Millisecond) {
		t.Fatal("expected timeout, got wake")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("wait returned after %v, before the timeout", elapsed)
	}
}

// TestEventQueue_WaitCanceled tests that context cancellation unblocks a
// waiter.
func TestEventQueue_WaitCanceled(t *testing.T) {
	q := NewEventQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		done <- q.WaitForWake(ctx, time.Minute)
	}()

	cancel()

	select {
	case woke := <-done:
		if woke {
			t.Error("canceled wait reported a wake")
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not return after cancellation")
	}
}

// TestEventQueue_ConcurrentPush tests that concurrent producers lose nothing
// and a single producer's events stay in its push order.
func TestEventQueue_ConcurrentPush(t *testing.T) {
	const producers = 4
	const perProducer = 250

	q := NewEventQueue()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				// RawLevel doubles as a sequence tag: id*perProducer+i.
				q.Push(PressEvent{RawLevel: id*perProducer + i})
			}
		}(p)
	}
	wg.Wait()

	drained := q.DrainAll()
	if len(drained) != producers*perProducer {
		t.Fatalf("expected %d events, got %d", producers*perProducer, len(drained))
	}

	// Per-producer relative order must be preserved.
	lastSeq := make(map[int]int)
	for i, ev := range drained {
		tag := ev.(PressEvent).RawLevel
		id := tag / perProducer
		seq := tag % perProducer
		if prev, seen := lastSeq[id]; seen && seq <= prev {
			t.Fatalf("event %d: producer %d out of order (seq %d after %d)", i, id, seq, prev)
		}
		lastSeq[id] = seq
	}
}

// TestEventQueue_PushDuringDrainNotLost tests that events pushed while the
// consumer is busy show up in a later drain.
func TestEventQueue_PushDuringDrainNotLost(t *testing.T) {
	q := NewEventQueue()
	ctx := context.Background()

	q.Push(TurnEvent{Delta: 1})
	first := q.DrainAll()
	if len(first) != 1 {
		t.Fatalf("expected 1 event in first drain, got %d", len(first))
	}

	// Producer lands another event "while" the consumer processes the
	// first batch.
	q.Push(TurnEvent{Delta: -1})

	if !q.WaitForWake(ctx, time.Second) {
		t.Fatal("expected wake for the late push")
	}
	second := q.DrainAll()
	if len(second) != 1 {
		t.Fatalf("expected 1 event in second drain, got %d", len(second))
	}
	if turn := second[0].(TurnEvent); turn.Delta != -1 {
		t.Errorf("expected the late event, got %#v", second[0])
	}
}
