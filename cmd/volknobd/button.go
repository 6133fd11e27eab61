package main

import "time"

// ============================================================================
// Button Debouncer
// ============================================================================
// Unlike the quadrature decoder's state-based suppression, the button uses a
// plain time window: only falling edges count (the switch is active-low), and
// a press inside the window of the last accepted press is dropped silently.
// Worst case a legitimate press inside the window is lost; that tradeoff is
// fine for a mute toggle.
// ============================================================================

// ButtonDebouncer turns raw edge notifications on the button line into
// PressEvents.
type ButtonDebouncer struct {
	minInterval time.Duration
	lastPress   time.Time
	now         func() time.Time
	emit        func(Event)
}

// newButtonDebouncer creates a debouncer with the given suppression window.
// emit runs in the producer context and must not block.
func newButtonDebouncer(minInterval time.Duration, emit func(Event)) *ButtonDebouncer {
	return &ButtonDebouncer{
		minInterval: minInterval,
		now:         time.Now,
		emit:        emit,
	}
}

// OnEdge processes one physical transition on the button line with the new
// logic level. Rising edges (release) never emit.
func (b *ButtonDebouncer) OnEdge(level int) {
	if level != 0 {
		return
	}

	now := b.now()
	if !b.lastPress.IsZero() && now.Sub(b.lastPress) < b.minInterval {
		// Inside the suppression window: bounce or double-fire.
		return
	}
	b.lastPress = now

	b.emit(PressEvent{RawLevel: level})
}
