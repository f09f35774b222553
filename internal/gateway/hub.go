// Package gateway serves the REST API and the WebSocket fan-out that
// streams ticks and trade confirmations to browsers.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"papertrade/internal/metrics"
	"papertrade/internal/model"
)

// Hub manages WebSocket clients and fans out tick and trade events.
// Ticks go to every client; trade confirmations only to clients
// authenticated for the trade's account.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry // per-symbol last tick envelope
	seq     int64

	replay  *ReplayBuffer
	Latency *LatencyTracker

	metrics *metrics.Metrics // optional
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a new Hub.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		replay:  NewReplayBuffer(2048),
		Latency: NewLatencyTracker(10000),
		metrics: m,
	}
}

// Run consumes the tick stream and broadcasts until ctx is cancelled or
// the channel closes.
func (h *Hub) Run(ctx context.Context, ticks <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			h.BroadcastTick(tick)
		}
	}
}

// BroadcastTick wraps a tick in an envelope, records it for replay and
// initial state, and fans it out to every connected client. Slow clients
// are skipped, not waited for.
func (h *Hub) BroadcastTick(tick model.Tick) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	envelope, err := json.Marshal(map[string]interface{}{
		"type": "tick",
		"seq":  seq,
		"data": tick,
	})
	if err != nil {
		h.mu.Unlock()
		return
	}
	h.latest[tick.Symbol] = latestEntry{Data: envelope, TS: tick.TS, Seq: seq}
	h.replay.Push(seq, envelope)

	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			// Slow consumer; it can backfill via REPLAY.
		}
	}
	h.mu.Unlock()

	if h.Latency != nil && !tick.TS.IsZero() {
		h.Latency.Record(float64(time.Since(tick.TS).Microseconds()) / 1000)
	}
}

// BroadcastTrade sends a trade confirmation to the clients logged in as
// the trade's account.
func (h *Hub) BroadcastTrade(trade model.Trade) {
	envelope, err := json.Marshal(map[string]interface{}{
		"type": "trade",
		"data": trade,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.accountID != trade.AccountID {
			continue
		}
		select {
		case client.send <- envelope:
		default:
		}
	}
}

// AddClient registers a connected client and starts its pumps.
func (h *Hub) AddClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
	close(c.send)
}

// ReplayRange returns buffered envelopes with seq in [fromSeq, toSeq],
// used for client gap backfill.
func (h *Hub) ReplayRange(fromSeq, toSeq int64) [][]byte {
	return h.replay.Range(fromSeq, toSeq)
}

// Seq returns the current broadcast sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
