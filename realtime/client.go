package realtime

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"derby-scoring-system/models"
)

const (
	// Time allowed to write an event to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Buffer size for outbound events
	sendBufferSize = 64
)

// JoinMessage is the first message a terminal sends after connecting: the
// game-day topic it wants, normally today's date.
type JoinMessage struct {
	GameDate string `json:"game_date"`
}

// Client represents one connected operator terminal.
type Client struct {
	ID    string
	Send  chan models.SyncEvent
	conn  *websocket.Conn
	hub   *Hub
	topic string
}

// NewClient wraps an upgraded connection that already announced its topic.
func NewClient(id string, conn *websocket.Conn, hub *Hub, topic string) *Client {
	return &Client{
		ID:    id,
		Send:  make(chan models.SyncEvent, sendBufferSize),
		conn:  conn,
		hub:   hub,
		topic: topic,
	}
}

// Topic returns the game-day topic this terminal subscribed to.
func (c *Client) Topic() string {
	return c.topic
}

// TrySend queues an event without blocking. Returns false when the buffer
// is full.
func (c *Client) TrySend(event models.SyncEvent) bool {
	select {
	case c.Send <- event:
		return true
	default:
		return false
	}
}

// ReadPump drains the connection until the terminal disconnects. Terminals
// only speak at join time, so inbound traffic past the join is ignored
// except for keeping the pong deadline fresh.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := c.conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("terminal %s unexpected close: %v", c.ID, err)
				}
				return
			}
		}
	}
}

// WritePump pushes queued events to the terminal and keeps the connection
// alive with pings.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case event, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(event); err != nil {
				log.Printf("terminal %s write error: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
