package notifications

import (
	"sync"
	"time"

	"billboard/internal/middleware"
	"billboard/internal/observability"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBufferSize = 256

	// Inbound control messages (join/leave) per second, with a small burst.
	inboundRate  = 5
	inboundBurst = 10
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection. Nil for clients that only receive through Send.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// UserID is 0 for anonymous viewers.
	UserID uint

	// Callback for handling incoming messages
	IncomingHandler func(*Client, []byte)

	// OnActivity is called for every inbound frame.
	OnActivity func()

	limiter   *rate.Limiter
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		hub:     hub,
		Conn:    conn,
		UserID:  userID,
		Send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
	}
}

// ReadPump pumps messages from the websocket connection to IncomingHandler.
// It unregisters the client when the connection ends.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.Logger.Warn("websocket read failed", "user_id", c.UserID, "error", err)
			}
			break
		}

		if c.OnActivity != nil {
			c.OnActivity()
		}
		if !c.limiter.Allow() {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "inbound_rate").Inc()
			continue
		}
		if c.IncomingHandler != nil {
			c.IncomingHandler(c, message)
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a message without blocking. Full or closed buffers drop the
// message and report false.
func (c *Client) TrySend(message []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "closed").Inc()
			sent = false
		}
	}()

	select {
	case c.Send <- message:
		return true
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "full").Inc()
		middleware.Logger.Warn("websocket buffer full, dropped message", "user_id", c.UserID, "hub", c.hub.Name())
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}
