package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps
// ============================================================================
// Optional push surface for integrations (status displays, home automation):
// every applied event is broadcast as a JSON envelope. Slow clients are
// disconnected when their send buffer fills; one stuck client must never
// stall the dispatch loop.
//
// Messages are JSON text frames: {type, ts, data} with types
// "state_init", "volume_changed" and "mute_toggled".
// ============================================================================

// wsEnvelope is the wire format for WS messages.
type wsEnvelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// wsVolumeData is the payload for "state_init" and "volume_changed".
type wsVolumeData struct {
	Volume int `json:"volume"`
}

// Hub tracks connected WebSocket clients and fans broadcast frames out to
// them.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	// lastVolume is the most recently broadcast volume, used for the
	// state_init frame on connect. Guarded by mu because the HTTP handler
	// reads it outside the consumer context.
	lastVolume int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, initialVolume int) *Hub {
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, 128),
		register:   make(chan *wsClient, 16),
		unregister: make(chan *wsClient, 16),
		clients:    make(map[*wsClient]struct{}),
		lastVolume: initialVolume,
	}
}

// currentVolume returns the last broadcast volume.
func (h *Hub) currentVolume() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastVolume
}

// Run processes hub events until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, remove after unlocking.
			var slow []*wsClient

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *wsClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		close(c.send)
		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// BroadcastEvent serializes an applied event and enqueues it for all
// clients. Never blocks; when the hub queue is full the frame is dropped.
func (h *Hub) BroadcastEvent(ev Event, volume int) {
	now := time.Now().UTC()
	var env wsEnvelope
	env.Ts = &now

	switch ev.(type) {
	case TurnEvent:
		env.Type = "volume_changed"
		env.Data = wsVolumeData{Volume: volume}
		h.mu.Lock()
		h.lastVolume = volume
		h.mu.Unlock()
	case PressEvent:
		env.Type = "mute_toggled"
	default:
		return
	}

	msg, err := json.Marshal(env)
	if err != nil {
		h.logger.Warn("ws broadcast marshal failed", "error", err, "type", env.Type)
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type wsClient struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 30 * time.Second
	wsPingPeriod = 20 * time.Second

	wsSendBuf = 32
)

// writePump writes frames from the send queue to the websocket.
// Exits on write error or when send is closed.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// Hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Info("ws writePump exiting", "remote_addr", c.remoteAddr, "error", err)
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Info("ws writePump exiting (ping)", "remote_addr", c.remoteAddr, "error", err)
				}
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and
// handle control frames, then unregisters the client.
func (c *wsClient) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.hub.unregister <- c
			return
		}
	}
}

// ============================================================================
// HTTP wiring
// ============================================================================

var wsUpgrader = websocket.Upgrader{
	// Origin checks are an integration-time concern; the listener is
	// expected to sit on a trusted LAN.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (h *Hub) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, wsSendBuf),
		remoteAddr: r.RemoteAddr,
		logger:     h.logger,
	}

	h.register <- client

	// Pumps are not tied to the request context: net/http cancels it when
	// the handler returns, which would kill the connection immediately.
	go client.writePump()
	go client.readPump()

	now := time.Now().UTC()
	initMsg, err := json.Marshal(wsEnvelope{
		Type: "state_init",
		Ts:   &now,
		Data: wsVolumeData{Volume: h.currentVolume()},
	})
	if err != nil {
		return
	}
	select {
	case client.send <- initMsg:
	default:
		h.unregister <- client
	}
}

// runStateWS serves the hub's websocket endpoint on the given port until ctx
// is canceled.
func runStateWS(ctx context.Context, port int, hub *Hub, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/state", hub.handleStateWS)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("state ws listening", "port", port, "path", "/ws/state")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
