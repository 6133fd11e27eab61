package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// testSocketPath returns a short socket path; unix socket paths have a hard
// length limit that t.TempDir can exceed.
func testSocketPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(os.TempDir(), fmt.Sprintf("volknobd-%d-%s.sock", os.Getpid(), strings.TrimPrefix(t.Name(), "TestIPCServer_")))
	t.Cleanup(func() { _ = os.Remove(path) })
	return path
}

// waitForSocket polls until the server is accepting connections.
func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ipc server never came up on %s", path)
}

// TestIPCServer_RoundTrip tests that injected events land in the queue in
// send order, exactly as physical ones would.
func TestIPCServer_RoundTrip(t *testing.T) {
	socketPath := testSocketPath(t)
	queue := NewEventQueue()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- runIPCServer(ctx, socketPath, queue, testLogger())
	}()
	waitForSocket(t, socketPath)

	if err := SendIPCEvent(socketPath, TurnEvent{Delta: 1}); err != nil {
		t.Fatalf("send turn: %v", err)
	}
	if err := SendIPCEvent(socketPath, PressEvent{}); err != nil {
		t.Fatalf("send press: %v", err)
	}
	if err := SendIPCEvent(socketPath, TurnEvent{Delta: -1}); err != nil {
		t.Fatalf("send turn: %v", err)
	}

	if !queue.WaitForWake(ctx, 2*time.Second) {
		t.Fatal("queue never woke")
	}
	// Three separate connections; give the last handler a moment.
	deadline := time.Now().Add(2 * time.Second)
	for queue.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	events := queue.DrainAll()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if turn, ok := events[0].(TurnEvent); !ok || turn.Delta != 1 {
		t.Errorf("event 0: expected turn +1, got %#v", events[0])
	}
	if _, ok := events[1].(PressEvent); !ok {
		t.Errorf("event 1: expected press, got %#v", events[1])
	}
	if turn, ok := events[2].(TurnEvent); !ok || turn.Delta != -1 {
		t.Errorf("event 2: expected turn -1, got %#v", events[2])
	}

	cancel()
	select {
	case err := <-serverDone:
		if err != nil {
			t.Errorf("server returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ipc server did not stop after cancel")
	}
}

// TestIPCServer_RejectsBadEvent tests that a malformed line gets an error
// response and nothing reaches the queue.
func TestIPCServer_RejectsBadEvent(t *testing.T) {
	socketPath := testSocketPath(t)
	queue := NewEventQueue()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = runIPCServer(ctx, socketPath, queue, testLogger())
	}()
	waitForSocket(t, socketPath)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, `{"type":"turn","data":{"delta":99}}`); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 512)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp := string(buf[:n])
	if !strings.Contains(resp, `"status":"error"`) {
		t.Errorf("expected error response, got %s", resp)
	}

	if queue.Len() != 0 {
		t.Errorf("bad event reached the queue: len=%d", queue.Len())
	}
}
