package push

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type client struct {
	id   uuid.UUID
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// enqueue never blocks; it reports false when the message was dropped.
func (c *client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) reply(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		c.hub.log.Error().Err(err).Msg("encoding push message")
		return
	}
	c.enqueue(b)
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug().Err(err).Str("client", c.id.String()).Msg("push client read failed")
			}
			return
		}
		c.handle(raw)
	}
}

func (c *client) handle(raw []byte) {
	var in Message
	if err := json.Unmarshal(raw, &in); err != nil {
		c.reply(Message{Type: TypeError, Message: "invalid message"})
		return
	}
	switch in.Type {
	case TypeRequestUpdate:
		go c.refresh()
	default:
		c.reply(Message{Type: TypeError, Message: "unknown message type: " + in.Type})
	}
}

// refresh answers a request_update to this subscriber only.
func (c *client) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), pongWait)
	defer cancel()

	snap := c.hub.source.Collect(ctx)
	if snap == nil {
		c.reply(Message{Type: TypeError, Message: "no snapshot available"})
		return
	}
	c.reply(dataUpdate(snap))
}
