package gateway

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer. accountID is empty for
// anonymous viewers, who receive ticks but no trade confirmations.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	accountID string
}

// NewClient wraps an upgraded connection. The client is inert until the
// hub registers it.
func NewClient(hub *Hub, conn *websocket.Conn, accountID string) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       hub,
		accountID: accountID,
	}
}

// sendInitialState pushes the last known tick per symbol so a fresh
// client renders prices before the next live tick.
func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for _, entry := range c.hub.latest {
		select {
		case c.send <- entry.Data:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: batch queued messages into a single
			// frame with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Type string `json:"type"`
			From int64  `json:"from_seq"`
			To   int64  `json:"to_seq"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &req) != nil {
			continue
		}

		switch req.Type {
		case "REPLAY":
			if req.To <= 0 {
				req.To = c.hub.Seq()
			}
			for _, envelope := range c.hub.ReplayRange(req.From, req.To) {
				select {
				case c.send <- envelope:
				default:
				}
			}

		default:
			if req.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      req.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}
