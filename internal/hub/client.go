package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096

	// a connection that misses this many pings in a row is considered dead
	missedPingLimit = 3
)

// Client is one registered websocket connection. Events are pushed through a
// buffered send channel; the connection drops if the client cannot keep up.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	userID    string
	roomID    string
	send      chan []byte
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, userID, roomID string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		roomID: roomID,
		send:   make(chan []byte, 64),
	}
}

func (c *Client) pongWait() time.Duration {
	return c.hub.pingInterval * missedPingLimit
}

// readPump consumes inbound frames to keep pong handling alive; the push
// protocol has no client commands, so payloads are discarded.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.shutdown()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue drops the connection rather than blocking when the send buffer is
// full. The recover guard covers the race with a concurrent shutdown closing
// the channel.
func (c *Client) enqueue(msg []byte) {
	defer func() { _ = recover() }()
	select {
	case c.send <- msg:
	default:
		go c.shutdown()
	}
}

func (c *Client) shutdown() {
	c.close("")
}

// close tears the connection down, first sending a close frame with the
// reason when one is given. WriteControl may run concurrently with the write
// pump.
func (c *Client) close(reason string) {
	c.closeOnce.Do(func() {
		if reason != "" {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		close(c.send)
		_ = c.conn.Close()
	})
}
