// Package feed broadcasts committed transactions to websocket subscribers.
// Delivery is best-effort: slow consumers drop events rather than stall
// commits.
package feed

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/riftline/arcjournal/internal/journal"
	"github.com/riftline/arcjournal/internal/platform/metrics"
)

// Event is one feed message: the committed transactions of a single commit
// batch on one instance.
type Event struct {
	InstanceID   string        `json:"instance_id"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction is the wire form of a committed transaction.
type Transaction struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Seq        uint64         `json:"seq"`
	ServerTime time.Time      `json:"server_time"`
	Fields     journal.Fields `json:"fields"`
}

const sendBuffer = 16

type subscriber struct {
	instanceID string
	send       chan Event
}

// Hub fans committed transactions out to websocket subscribers keyed by
// instance id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Publish implements the command layer's Publisher interface. Subscribers
// with full buffers miss the event; the drop is counted, not retried.
func (h *Hub) Publish(instanceID string, txs []journal.Transaction) {
	if len(txs) == 0 {
		return
	}
	event := Event{InstanceID: instanceID, Transactions: make([]Transaction, 0, len(txs))}
	for _, tx := range txs {
		wire := Transaction{
			ID:     tx.ID,
			Kind:   string(tx.Kind),
			Seq:    tx.Seq,
			Fields: tx.Payload.Fields(),
		}
		if tx.ServerTime != nil {
			wire.ServerTime = *tx.ServerTime
		}
		event.Transactions = append(event.Transactions, wire)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.instanceID != "" && sub.instanceID != instanceID {
			continue
		}
		select {
		case sub.send <- event:
		default:
			metrics.FeedDropsTotal.Inc()
		}
	}
}

// Handler returns the websocket endpoint. Clients may scope the feed to one
// instance with ?instance_id=; without it they receive every commit.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("feed upgrade failed", "error", err)
			return
		}
		sub := &subscriber{
			instanceID: r.URL.Query().Get("instance_id"),
			send:       make(chan Event, sendBuffer),
		}
		if !h.add(sub) {
			_ = conn.Close()
			return
		}

		go h.writePump(conn, sub)
		go h.readPump(conn, sub)
	})
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.send)
		delete(h.subs, sub)
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[sub] = struct{}{}
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber) {
	defer conn.Close()
	for event := range sub.send {
		if err := conn.WriteJSON(event); err != nil {
			h.remove(sub)
			return
		}
	}
}

// readPump drains client frames so closes are noticed promptly. The feed is
// one-way; inbound payloads are discarded.
func (h *Hub) readPump(conn *websocket.Conn, sub *subscriber) {
	defer h.remove(sub)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
