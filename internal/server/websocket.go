package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler bridges one crawl's event-bus subscription to a
// WebSocket client: per-connection mutex and client registry bookkeeping,
// adapted from a single broadcast-to-all-clients stream to one subscription per
// (crawl_id, connection) pair.
type WebSocketHandler struct {
	bus    interfaces.EventBus
	logger arbor.ILogger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewWebSocketHandler builds a WebSocketHandler over bus.
func NewWebSocketHandler(bus interfaces.EventBus, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{bus: bus, logger: logger, conns: make(map[*websocket.Conn]struct{})}
}

// wsEnvelope is the wire shape of every message pushed to a client,
// a simple WSMessage{Type, Payload} envelope.
type wsEnvelope struct {
	Type    string           `json:"type"`
	Payload interfaces.Event `json:"payload"`
}

// HandleWebSocket upgrades the connection and streams crawl_id's event bus
// to it until the client disconnects. crawl_id and an optional
// replay=true query parameter select the subscription.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	crawlID := r.URL.Query().Get("crawl_id")
	if crawlID == "" {
		http.Error(w, "crawl_id is required", http.StatusBadRequest)
		return
	}
	replay := r.URL.Query().Get("replay") == "true"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	h.logger.Info().Str("crawl_id", crawlID).Msg("event stream client connected")

	sub := h.bus.Subscribe(crawlID, 256, replay)
	defer sub.Close()

	done := make(chan struct{})
	go h.drainReads(conn, done)

	var writeMu sync.Mutex
	for {
		select {
		case <-done:
			h.disconnect(conn, crawlID)
			return
		case event, ok := <-sub.Events():
			if !ok {
				h.disconnect(conn, crawlID)
				return
			}
			if err := h.send(conn, &writeMu, event); err != nil {
				h.logger.Warn().Err(err).Str("crawl_id", crawlID).Msg("failed to write event to client")
				h.disconnect(conn, crawlID)
				return
			}
		}
	}
}

// drainReads discards client-sent frames (this is a push-only stream) and
// closes done once the client disconnects, using a simple keep-alive read
// loop.
func (h *WebSocketHandler) drainReads(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, writeMu *sync.Mutex, event interfaces.Event) error {
	data, err := json.Marshal(wsEnvelope{Type: string(event.Type), Payload: event})
	if err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WebSocketHandler) disconnect(conn *websocket.Conn, crawlID string) {
	h.mu.Lock()
	delete(h.conns, conn)
	remaining := len(h.conns)
	h.mu.Unlock()

	conn.Close()
	h.logger.Info().Str("crawl_id", crawlID).Int("remaining_clients", remaining).Msg("event stream client disconnected")
}
