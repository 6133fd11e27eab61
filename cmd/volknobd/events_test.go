package main

import (
	"testing"
)

// TestEventRoundTrip tests the envelope encoding used on the IPC socket.
func TestEventRoundTrip(t *testing.T) {
	for _, ev := range []Event{
		TurnEvent{Delta: 1},
		TurnEvent{Delta: -1},
		PressEvent{},
	} {
		data, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("marshal %#v: %v", ev, err)
		}
		got, err := UnmarshalEvent(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != ev {
			t.Errorf("round trip changed event: sent %#v, got %#v", ev, got)
		}
	}
}

// TestUnmarshalEvent_Rejects tests the injection guard rails: deltas other
// than +/-1, unknown types and malformed JSON are all refused.
func TestUnmarshalEvent_Rejects(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"zero delta", `{"type":"turn","data":{"delta":0}}`},
		{"big delta", `{"type":"turn","data":{"delta":5}}`},
		{"unknown type", `{"type":"spin"}`},
		{"empty type", `{}`},
		{"not json", `volume up please`},
		{"turn without data", `{"type":"turn"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := UnmarshalEvent([]byte(tc.line)); err == nil {
				t.Errorf("expected error for %q, got none", tc.line)
			}
		})
	}
}

// TestUnmarshalEvent_Press tests that a press envelope needs no data payload.
func TestUnmarshalEvent_Press(t *testing.T) {
	ev, err := UnmarshalEvent([]byte(`{"type":"press"}`))
	if err != nil {
		t.Fatalf("unmarshal press: %v", err)
	}
	if _, ok := ev.(PressEvent); !ok {
		t.Errorf("expected PressEvent, got %T", ev)
	}
}

// TestChannelString tests the log labels for channels.
func TestChannelString(t *testing.T) {
	if ChannelA.String() == "" || ChannelB.String() == "" || ChannelButton.String() == "" {
		t.Error("channel labels must not be empty")
	}
	if ChannelA.String() == ChannelB.String() {
		t.Error("channel A and B share a label")
	}
}
