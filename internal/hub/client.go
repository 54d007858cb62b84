package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hangsync/hang/internal/logging"
	"github.com/hangsync/hang/internal/metrics"
)

// wsConnection abstracts the subset of *websocket.Conn the Client needs,
// so tests can substitute a mock without opening a real socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 12 * time.Second // spec §4.6: keepalive ping every 12s
)

// Client represents one connected websocket peer. It belongs to at most
// one room at a time, tracked by RoomCode (empty string = unassigned).
type Client struct {
	conn   wsConnection
	hub    *Hub
	send   chan []byte // buffered outbound queue; readPump/writePump split per §5
	closed chan struct{}

	ID          string
	DisplayName string

	mu       sync.RWMutex
	RoomCode string
}

func (c *Client) getRoomCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RoomCode
}

func (c *Client) setRoomCode(code string) {
	c.mu.Lock()
	c.RoomCode = code
	c.mu.Unlock()
}

// enqueue queues an already-marshaled frame. A full buffer drops the
// message for this recipient only, per the fan-out engine's
// at-most-once policy — it never blocks the caller.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		logging.Warn(nil, "client send channel full, dropping message", zap.String("client_id", c.ID))
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		c.conn.Close()
		close(c.closed)
		metrics.DecConnection()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.handleFrame(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
