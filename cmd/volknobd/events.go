package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Event Types
// ============================================================================
// Events are the immutable values produced by the decoders (and by IPC
// clients) and consumed, in arrival order, by the dispatch loop.
// ============================================================================

// Event is a marker interface over the decoder outputs.
type Event interface {
	eventMarker()
}

// TurnEvent is one detent of encoder rotation.
type TurnEvent struct {
	Delta int `json:"delta"` // +1 or -1
}

func (TurnEvent) eventMarker() {}

// PressEvent is one accepted (debounced) button press.
type PressEvent struct {
	RawLevel int `json:"raw_level"` // logic level at the accepted edge (0 for active-low)
}

func (PressEvent) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps events with a type discriminator so external clients
// (IPC, volknob-ctl) can inject them as line-delimited JSON.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "turn":
		var e TurnEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal TurnEvent: %w", err)
		}
		if e.Delta != 1 && e.Delta != -1 {
			return nil, fmt.Errorf("turn delta must be +1 or -1, got %d", e.Delta)
		}
		return e, nil

	case "press":
		return PressEvent{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case TurnEvent:
		env.Type = "turn"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal TurnEvent: %w", err)
		}
		env.Data = data

	case PressEvent:
		env.Type = "press"

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
