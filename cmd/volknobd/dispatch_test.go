package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

// startDispatch runs the loop in the background and returns a channel of
// notify callbacks plus the done channel.
func startDispatch(ctx context.Context, q *EventQueue, ctrl *VolumeController) (chan Event, chan struct{}) {
	notified := make(chan Event, 64)
	done := make(chan struct{})
	notify := func(ev Event, volume int) {
		notified <- ev
	}
	go func() {
		defer close(done)
		runDispatch(ctx, q, ctrl, time.Minute, notify, testLogger())
	}()
	return notified, done
}

func waitNotified(t *testing.T, notified chan Event, n int) []Event {
	t.Helper()
	var events []Event
	for len(events) < n {
		select {
		case ev := <-notified:
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d applied events, got %d", n, len(events))
		}
	}
	return events
}

// TestRunDispatch_AppliesInOrder tests that queued events are applied in
// arrival order with one backend command each.
func TestRunDispatch_AppliesInOrder(t *testing.T) {
	backend := &mockBackend{volume: 50}
	ctrl := NewVolumeController(backend, 0, 100, 1, testLogger())
	if err := ctrl.Sync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	q := NewEventQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notified, done := startDispatch(ctx, q, ctrl)

	q.Push(TurnEvent{Delta: 1})
	q.Push(TurnEvent{Delta: 1})
	q.Push(PressEvent{})
	q.Push(TurnEvent{Delta: -1})

	events := waitNotified(t, notified, 4)

	if turn := events[0].(TurnEvent); turn.Delta != 1 {
		t.Errorf("event 0: expected +1, got %#v", events[0])
	}
	if turn := events[1].(TurnEvent); turn.Delta != 1 {
		t.Errorf("event 1: expected +1, got %#v", events[1])
	}
	if _, ok := events[2].(PressEvent); !ok {
		t.Errorf("event 2: expected press, got %#v", events[2])
	}
	if turn := events[3].(TurnEvent); turn.Delta != -1 {
		t.Errorf("event 3: expected -1, got %#v", events[3])
	}

	if ctrl.Current() != 51 {
		t.Errorf("expected volume 51, got %d", ctrl.Current())
	}
	if backend.toggleCount != 1 {
		t.Errorf("expected 1 toggle, got %d", backend.toggleCount)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop after cancel")
	}
}

// TestRunDispatch_SurvivesBackendError tests that a failed apply does not
// stop later events in the same batch from being applied.
func TestRunDispatch_SurvivesBackendError(t *testing.T) {
	backend := &mockBackend{volume: 50, toggleErr: errors.New("player down")}
	ctrl := NewVolumeController(backend, 0, 100, 1, testLogger())
	if err := ctrl.Sync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	q := NewEventQueue()

	// Both events queued before the loop starts, so they land in one drain.
	q.Push(PressEvent{})
	q.Push(TurnEvent{Delta: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notified, done := startDispatch(ctx, q, ctrl)

	events := waitNotified(t, notified, 1)
	if turn, ok := events[0].(TurnEvent); !ok || turn.Delta != 1 {
		t.Errorf("expected the turn to be applied after the failed press, got %#v", events[0])
	}
	if ctrl.Current() != 51 {
		t.Errorf("expected volume 51, got %d", ctrl.Current())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop after cancel")
	}
}

// TestRunDispatch_StopsOnCancel tests that cancellation unblocks an idle
// loop.
func TestRunDispatch_StopsOnCancel(t *testing.T) {
	backend := &mockBackend{volume: 50}
	ctrl := NewVolumeController(backend, 0, 100, 1, testLogger())

	q := NewEventQueue()
	ctx, cancel := context.WithCancel(context.Background())
	_, done := startDispatch(ctx, q, ctrl)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop after cancel")
	}
}
