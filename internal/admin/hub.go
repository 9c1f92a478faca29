package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/session"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatusMessage is one frame of the status feed.
type StatusMessage struct {
	Tick   int                 `json:"tick"`
	Period int                 `json:"period"`
	Status exchange.CaseStatus `json:"status"`
	Error  string              `json:"error,omitempty"`
	Ts     time.Time           `json:"ts"`
}

// Hub fans session status out to every connected websocket client.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	log     zerolog.Logger
}

// NewHub returns an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{}), log: log}
}

// ServeWS upgrades the request and registers the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("status client connected")

	// Drain reads so close frames are noticed.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Clients reports how many subscribers are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// Broadcast writes msg to every client, dropping the ones that fail.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Run polls the session every interval and broadcasts it until ctx ends.
// Poll failures are broadcast as frames carrying an error.
func (h *Hub) Run(ctx context.Context, src session.CaseSource, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case <-ticker.C:
		}
		if h.Clients() == 0 {
			continue
		}
		msg := StatusMessage{Ts: time.Now().UTC()}
		sess, err := src.Case(ctx)
		if err != nil {
			msg.Error = err.Error()
		} else {
			msg.Tick, msg.Period, msg.Status = sess.Tick, sess.Period, sess.Status
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		h.Broadcast(payload)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
		delete(h.clients, conn)
	}
}
