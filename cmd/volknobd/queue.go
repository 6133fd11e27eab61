package main

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// EventQueue - producer/consumer bridge
// ============================================================================
//
// The queue is the only structure shared between the edge-producing context
// and the dispatch loop. Pushes never block, drains always empty the queue,
// and the wake signal is a one-slot channel so a wake that races with a
// drain stays set and the next wait returns immediately.
//
// FIFO guarantee: events are drained in exactly the order their Push calls
// completed. Events pushed while a drain is in progress are picked up by a
// later drain, never lost.
// ============================================================================

// EventQueue is an unbounded FIFO of Events plus a binary wake signal.
type EventQueue struct {
	mu     sync.Mutex
	events []Event

	// wake has capacity 1: "set" means a value is buffered.
	wake chan struct{}
}

// NewEventQueue creates an empty queue with its wake signal cleared.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		events: make([]Event, 0, 16),
		wake:   make(chan struct{}, 1),
	}
}

// Push appends an event to the tail and sets the wake signal.
// It never blocks and is safe to call from the producer context.
func (q *EventQueue) Push(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
		// Already set.
	}
}

// DrainAll removes and returns all currently queued events in FIFO order.
// May return nil when the queue is empty. Single-consumer only.
func (q *EventQueue) DrainAll() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	drained := q.events
	q.events = make([]Event, 0, 16)
	return drained
}

// Len reports the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// WaitForWake blocks until the wake signal is set, the timeout elapses, or
// ctx is canceled. A wake consumed here clears the signal. Returns true only
// when woken by the signal.
func (q *EventQueue) WaitForWake(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.wake:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
