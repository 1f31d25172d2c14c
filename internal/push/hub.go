// Package push streams snapshots to WebSocket subscribers.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quotefeed/internal/metrics"
	"quotefeed/internal/snapshot"
)

const (
	TypeDataUpdate    = "data_update"
	TypeRequestUpdate = "request_update"
	TypeError         = "error"

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxMessage   = 4096
	sendCapacity = 256
)

// Message is the envelope exchanged with subscribers.
type Message struct {
	Type      string             `json:"type"`
	Data      *snapshot.Snapshot `json:"data,omitempty"`
	Message   string             `json:"message,omitempty"`
	Timestamp *time.Time         `json:"timestamp,omitempty"`
}

// dataUpdate tags snap with the time it was taken, not the time it is sent.
func dataUpdate(snap *snapshot.Snapshot) Message {
	at := snap.TakenAt()
	return Message{Type: TypeDataUpdate, Data: snap, Timestamp: &at}
}

// Source supplies snapshots to the hub.
type Source interface {
	// Latest returns the current snapshot, or nil before the first tick.
	Latest() *snapshot.Snapshot
	// Collect builds a fresh snapshot out of band.
	Collect(ctx context.Context) *snapshot.Snapshot
}

// Hub tracks subscribers and fans snapshots out to them. It is a sink.
type Hub struct {
	source   Source
	upgrader websocket.Upgrader
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type Option func(*Hub)

func WithLogger(l zerolog.Logger) Option { return func(h *Hub) { h.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(h *Hub) { h.metrics = m } }

func NewHub(source Source, opts ...Option) *Hub {
	h := &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     zerolog.Nop(),
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) Name() string { return "push" }

// Publish sends snap to every subscriber. Subscribers whose buffer is full
// miss this snapshot.
func (h *Hub) Publish(_ context.Context, snap *snapshot.Snapshot) error {
	msg, err := json.Marshal(dataUpdate(snap))
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.enqueue(msg) {
			h.log.Warn().Str("client", c.id.String()).Msg("push buffer full, snapshot dropped")
		}
	}
	return nil
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{
		id:   uuid.New(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendCapacity),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.ClientConnected()
	h.log.Info().Str("client", c.id.String()).Int("clients", count).Msg("push client connected")

	if snap := h.source.Latest(); snap != nil {
		c.reply(dataUpdate(snap))
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	h.metrics.ClientDisconnected()
	h.log.Info().Str("client", c.id.String()).Int("clients", count).Msg("push client disconnected")
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.remove(c)
	}
}
