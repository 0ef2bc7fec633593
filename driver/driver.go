// Package driver is the wire bridge to avatar frontends. It broadcasts
// directive payloads over WebSocket and answers the frontend control
// protocol; rendering stays entirely on the frontend side.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deskclaw/deskclaw/config"
)

const (
	// sliceLength is the subtitle slice hint the frontend expects.
	sliceLength = 20

	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 16

	characterName = "Claw"
)

// HistoryEntry is one conversation history stub tracked for the frontend's
// history picker.
type HistoryEntry struct {
	UID           string `json:"uid"`
	LatestMessage any    `json:"latest_message"`
	Timestamp     string `json:"timestamp"`
}

// Server accepts avatar frontends on /client-ws and serves the frontend's
// static assets when a directory is configured.
type Server struct {
	addr        string
	frontendDir string
	modelInfo   ModelInfo
	upgrader    websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	history []HistoryEntry

	onText      func(string)
	onInterrupt func()

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds the bridge from the server config section. frontendDir may
// be empty; then only the WebSocket endpoint is served.
func NewServer(cfg config.ServerConfig, modelInfo ModelInfo, frontendDir string) *Server {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 12393
	}
	return &Server{
		addr:        fmt.Sprintf("%s:%d", host, port),
		frontendDir: frontendDir,
		modelInfo:   modelInfo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[*client]struct{}{},
	}
}

// SetTextInputHandler registers the callback for frontend "text-input"
// messages. Call before Start.
func (s *Server) SetTextInputHandler(fn func(text string)) { s.onText = fn }

// SetInterruptHandler registers the callback for frontend "interrupt-signal"
// messages. Call before Start.
func (s *Server) SetInterruptHandler(fn func()) { s.onInterrupt = fn }

// Start begins listening. It returns once the listener is bound; serving runs
// in the background until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("driver: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[driver] server stopped: %v", err)
		}
	}()

	log.Printf("[driver] listening on ws://%s/client-ws", s.addr)
	return nil
}

// Addr reports the bound address, useful when the configured port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and disconnects every frontend.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.mu.Lock()
	for c := range s.clients {
		c.shutdown()
		delete(s.clients, c)
	}
	s.mu.Unlock()
	return err
}

// Handler exposes the HTTP surface: the WebSocket endpoint, the model info
// endpoint, and optional static assets.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/client-ws", s.serveWS)
	mux.HandleFunc("/live2d-models/info", s.serveModelInfo)
	if s.frontendDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.frontendDir)))
	}
	return mux
}

// Send broadcasts one directive to every connected frontend: the display
// text, expression indices mapped from the emotion, and the motion tag.
func (s *Server) Send(text, emotion, motion string) {
	payload := s.buildActionPayload(text, emotion, motion)
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[driver] encode payload: %v", err)
		return
	}
	s.broadcast(raw)
}

func (s *Server) broadcast(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- raw:
		default:
			// Slow frontend; drop it rather than stall the broadcast. The
			// send channel stays open because the client's readPump may still
			// call sendJSON; shutdown only signals the write side to unwind.
			c.shutdown()
			delete(s.clients, c)
		}
	}
}

func (s *Server) buildActionPayload(text, emotion, motion string) map[string]any {
	actions := map[string]any{}
	if expressions := s.modelInfo.Expressions(emotion); expressions != nil {
		actions["expressions"] = expressions
	}
	if motion != "" {
		actions["motions"] = []string{motion}
	}

	payload := map[string]any{
		"type":         "audio",
		"audio":        nil,
		"volumes":      []float64{},
		"slice_length": sliceLength,
		"display_text": map[string]any{"text": text, "name": characterName, "avatar": nil},
		"forwarded":    false,
	}
	if len(actions) > 0 {
		payload["actions"] = actions
	} else {
		payload["actions"] = nil
	}
	return payload
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[driver] upgrade: %v", err)
		return
	}

	c := newClient(conn)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go c.writePump()
	s.sendInitial(c)
	s.readPump(c)
}

func (s *Server) sendInitial(c *client) {
	clientUID := uuid.NewString()
	c.sendJSON(map[string]any{"type": "full-text", "text": "Connection established"})
	c.sendJSON(map[string]any{
		"type":       "set-model-and-conf",
		"model_info": s.modelInfo.raw,
		"conf_name":  "default",
		"conf_uid":   "local",
		"client_uid": clientUID,
	})
	c.sendJSON(map[string]any{"type": "control", "text": "start-mic"})
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.shutdown()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(c, raw)
	}
}

func (s *Server) handleMessage(c *client, raw []byte) {
	var msg struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		HistoryUID string `json:"history_uid"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[driver] invalid frontend message: %v", err)
		return
	}

	switch msg.Type {
	case "fetch-configs":
		c.sendJSON(map[string]any{"type": "config-files", "configs": []any{}})
	case "fetch-backgrounds":
		c.sendJSON(map[string]any{"type": "background-files", "files": []any{}})
	case "fetch-history-list":
		s.mu.Lock()
		histories := append([]HistoryEntry{}, s.history...)
		s.mu.Unlock()
		c.sendJSON(map[string]any{"type": "history-list", "histories": histories})
	case "create-new-history":
		entry := HistoryEntry{
			UID:       uuid.NewString(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		s.mu.Lock()
		s.history = append([]HistoryEntry{entry}, s.history...)
		s.mu.Unlock()
		c.sendJSON(map[string]any{"type": "new-history-created", "history_uid": entry.UID})
	case "delete-history":
		s.mu.Lock()
		before := len(s.history)
		kept := s.history[:0]
		for _, h := range s.history {
			if h.UID != msg.HistoryUID {
				kept = append(kept, h)
			}
		}
		s.history = kept
		success := len(s.history) != before
		s.mu.Unlock()
		c.sendJSON(map[string]any{
			"type":        "history-deleted",
			"success":     success,
			"history_uid": msg.HistoryUID,
		})
	case "fetch-and-set-history":
		c.sendJSON(map[string]any{"type": "history-data", "messages": []any{}})
	case "heartbeat":
		c.sendJSON(map[string]any{"type": "heartbeat-ack"})
	case "text-input":
		if s.onText != nil && msg.Text != "" {
			s.onText(msg.Text)
		}
	case "interrupt-signal":
		if s.onInterrupt != nil {
			s.onInterrupt()
		}
	case "audio-play-start":
		// Playback telemetry only.
	default:
		log.Printf("[driver] unhandled frontend message type %q", msg.Type)
	}
}

// client is one connected frontend with a buffered outbound queue so one slow
// socket never blocks the hub. The send channel is never closed; done carries
// the shutdown signal instead, so a late sendJSON from the read side is always
// a safe drop rather than a send on a closed channel.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// shutdown tells the write pump to unwind. Safe to call from the hub, the
// read pump, or both.
func (c *client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) sendJSON(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("[driver] encode: %v", err)
		return
	}
	select {
	case c.send <- raw:
	case <-c.done:
	default:
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case raw := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
