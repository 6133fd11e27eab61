package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
)

// ============================================================================
// volknob-ctl - Command-line IPC Client
// ============================================================================
// Sends events to the volknobd daemon via its Unix socket. An injected turn
// or press goes through the same queue as a physical one.
//
// Usage:
//   volknob-ctl up
//   volknob-ctl down
//   volknob-ctl press
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/volknobd.sock)
// ============================================================================

// Event envelope types (duplicated from the daemon for a standalone binary)
type TurnEvent struct {
	Delta int `json:"delta"`
}

type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	socketPath := "/tmp/volknobd.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var env EventEnvelope

	switch args[0] {
	case "up", "volume-up":
		env = turnEnvelope(1)

	case "down", "volume-down":
		env = turnEnvelope(-1)

	case "press", "mute", "toggle-mute":
		env = EventEnvelope{Type: "press"}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err := sendEvent(socketPath, env); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

func turnEnvelope(delta int) EventEnvelope {
	data, _ := json.Marshal(TurnEvent{Delta: delta})
	return EventEnvelope{Type: "turn", Data: data}
}

func sendEvent(socketPath string, env EventEnvelope) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Send event (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}

	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `volknob-ctl - Control the volknobd daemon via IPC

Usage:
  volknob-ctl [options] <command>

Options:
  -socket PATH    Unix domain socket path (default: /tmp/volknobd.sock)

Commands:
  up, volume-up           Inject one clockwise detent
  down, volume-down       Inject one counter-clockwise detent
  press, mute             Inject a button press (toggle mute)
  help, -h, --help        Show this help message

Examples:
  volknob-ctl up
  volknob-ctl -socket /var/run/volknobd.sock press
`)
}
