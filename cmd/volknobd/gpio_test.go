package main

import (
	"context"
	"testing"
	"time"
)

// feedEdges pushes raw edges into the producer channel.
func feedEdges(edges chan<- rawEdge, seq ...rawEdge) {
	for _, e := range seq {
		edges <- e
	}
}

// waitQueueLen polls until the queue holds n events.
func waitQueueLen(t *testing.T, q *EventQueue, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for q.Len() < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if q.Len() < n {
		t.Fatalf("queue never reached %d events, len=%d", n, q.Len())
	}
}

// TestEdgeProducer_RoutesChannels tests that encoder edges reach the
// quadrature decoder and button edges reach the debouncer.
func TestEdgeProducer_RoutesChannels(t *testing.T) {
	q := NewEventQueue()
	decoder := newQuadratureDecoder(false, q.Push)
	button := newButtonDebouncer(0, q.Push)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	edges := make(chan rawEdge, edgeChanBuf)
	go runEdgeProducer(ctx, edges, decoder, button, testLogger())

	// One full detent plus a button press.
	feedEdges(edges,
		rawEdge{Channel: ChannelB, Level: 1},
		rawEdge{Channel: ChannelA, Level: 1},
		rawEdge{Channel: ChannelB, Level: 0},
		rawEdge{Channel: ChannelA, Level: 0},
		rawEdge{Channel: ChannelButton, Level: 0},
	)

	waitQueueLen(t, q, 2)
	events := q.DrainAll()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if turn, ok := events[0].(TurnEvent); !ok || turn.Delta != 1 {
		t.Errorf("event 0: expected turn +1, got %#v", events[0])
	}
	if _, ok := events[1].(PressEvent); !ok {
		t.Errorf("event 1: expected press, got %#v", events[1])
	}
}

// TestEdgeProducer_SurvivesDecoderPanic tests the panic containment: a bogus
// channel must not kill edge delivery for the edges behind it.
func TestEdgeProducer_SurvivesDecoderPanic(t *testing.T) {
	q := NewEventQueue()
	decoder := newQuadratureDecoder(false, q.Push)
	button := newButtonDebouncer(0, q.Push)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	edges := make(chan rawEdge, edgeChanBuf)
	go runEdgeProducer(ctx, edges, decoder, button, testLogger())

	feedEdges(edges,
		rawEdge{Channel: Channel(42), Level: 1}, // panics inside the decoder
		rawEdge{Channel: ChannelButton, Level: 0},
	)

	waitQueueLen(t, q, 1)
	events := q.DrainAll()
	if _, ok := events[0].(PressEvent); !ok {
		t.Errorf("expected the press after the panic, got %#v", events[0])
	}
}

// TestNewPinWatcher_UnknownDriver tests driver selection errors.
func TestNewPinWatcher_UnknownDriver(t *testing.T) {
	cfg := GPIOConfig{Driver: "sysfs"}
	if _, err := newPinWatcher(cfg, map[Channel]int{}, testLogger()); err == nil {
		t.Fatal("expected error for unknown driver, got none")
	}
}
