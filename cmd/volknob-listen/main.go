package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// volknob-listen subscribes to the volknobd state websocket and prints every
// frame. Useful for debugging the knob without watching daemon logs.

type wsEnvelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsVolumeData struct {
	Volume int `json:"volume"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws/state", "volknobd state websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON frames instead of decoded lines")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			printFrame(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printFrame decodes one state frame and prints a one-liner.
func printFrame(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", message)
		return
	}

	switch env.Type {
	case "state_init", "volume_changed":
		var data wsVolumeData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			fmt.Printf("[%s] %s\n", env.Type, env.Data)
			return
		}
		fmt.Printf("[VOLUME] %d\n", data.Volume)

	case "mute_toggled":
		fmt.Printf("[MUTE] toggled\n")

	default:
		fmt.Printf("[%s] %s\n", env.Type, env.Data)
	}
}
