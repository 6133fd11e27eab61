package main

import "fmt"

// ============================================================================
// Quadrature Decoder
// ============================================================================
//
// A quadrature encoder drives two lines (A and B) through a 2-bit Gray cycle
// per detent: 00 -> 10 -> 11 -> 01 -> 00. Both lines fire edge interrupts
// independently, and mechanical contacts bounce, so the decoder has to infer
// direction from noisy, interleaved notifications.
//
// Two rules do all the work:
//
//  1. Same-channel suppression: a repeated notification on the channel that
//     fired last is ignored until the other channel has toggled. This absorbs
//     contact bounce without any timing assumptions.
//  2. Direction is decided only on the "second line goes high while the
//     other is already high" transition. Every other transition is an
//     intermediate sub-state of the same detent and emits nothing.
//
// Which line leading means "up" depends on how the encoder is wired; the
// SwapDirection config flag flips the sign rather than guessing.
//
// OnEdge must only ever be called from a single goroutine (the edge
// producer); the internal state is deliberately unsynchronized.
// ============================================================================

// Channel identifies one of the monitored input lines.
type Channel int

const (
	ChannelA Channel = iota
	ChannelB
	ChannelButton
)

// channelNone marks "no edge seen yet" in edgeState.
const channelNone Channel = -1

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	case ChannelButton:
		return "button"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// edgeState holds the last-known level of each encoder line plus the channel
// that fired most recently. Mutated only by the decoder.
type edgeState struct {
	levelA      int
	levelB      int
	lastChannel Channel
}

// QuadratureDecoder turns raw edge notifications on channels A and B into
// TurnEvents.
type QuadratureDecoder struct {
	state         edgeState
	swapDirection bool
	emit          func(Event)
}

// newQuadratureDecoder creates a decoder that hands emitted events to emit.
// emit runs in the producer context and must not block.
func newQuadratureDecoder(swapDirection bool, emit func(Event)) *QuadratureDecoder {
	return &QuadratureDecoder{
		state:         edgeState{lastChannel: channelNone},
		swapDirection: swapDirection,
		emit:          emit,
	}
}

// OnEdge processes one physical transition on channel A or B with the new
// logic level. Any other channel is a programming error and panics.
func (d *QuadratureDecoder) OnEdge(ch Channel, level int) {
	switch ch {
	case ChannelA:
		d.state.levelA = level
	case ChannelB:
		d.state.levelB = level
	default:
		panic(fmt.Sprintf("quadrature decoder fed edge for channel %s", ch))
	}

	// Same-channel repeat: bounce, or a spurious re-notification. Drop it
	// before it can be mistaken for a new sub-state.
	if ch == d.state.lastChannel {
		return
	}
	d.state.lastChannel = ch

	if level != 1 {
		return
	}

	var delta int
	switch {
	case ch == ChannelA && d.state.levelB == 1:
		delta = 1
	case ch == ChannelB && d.state.levelA == 1:
		delta = -1
	default:
		// Intermediate sub-state of the detent; nothing to emit.
		return
	}

	if d.swapDirection {
		delta = -delta
	}

	d.emit(TurnEvent{Delta: delta})
}
