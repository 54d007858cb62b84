// Package syncclient implements the Sync Client (C6): the client's
// single owned websocket, split into independent send/receive halves,
// with keepalive, RTT tracking, and concurrency-safe byte/message
// counters.
package syncclient

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hangsync/hang/internal/protocol"
)

const pingInterval = 12 * time.Second

// pingPayload packs an 8-byte little-endian nonce and an 8-byte
// little-endian send-time (unix nanos) into a 16-byte ping payload, so
// the matching pong can be correlated to measure round-trip latency
// even if pings and pongs interleave.
func pingPayload(nonce uint64, sentAt time.Time) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], nonce)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(sentAt.UnixNano()))
	return buf
}

// InboundFunc receives every decoded inbound Envelope.
type InboundFunc func(env protocol.Envelope)

// Stats is a point-in-time, concurrency-safe snapshot of transport
// activity.
type Stats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	LastRTT          time.Duration
	Connected        bool
	EndpointLabel    string
}

// Client owns exactly one live socket at a time.
type Client struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	outbound chan []byte
	cancel   context.CancelFunc

	inbound InboundFunc

	stats      Stats
	pingNonce  uint64
	pingSentAt time.Time

	disconnected chan struct{} // closed and replaced each connect; fires once per session
}

// New constructs a Client that hands every decoded inbound frame to cb.
// cb may be nil and set later via SetInbound, to break construction
// cycles with a callback that itself needs the Client.
func New(cb InboundFunc) *Client {
	return &Client{inbound: cb}
}

// SetInbound sets or replaces the inbound callback.
func (c *Client) SetInbound(cb InboundFunc) {
	c.mu.Lock()
	c.inbound = cb
	c.mu.Unlock()
}

// Connect takes ownership of conn, spawning its send/receive pumps.
// Any previously owned connection is torn down first.
func (c *Client) Connect(conn *websocket.Conn) {
	c.mu.Lock()
	c.teardownLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.outbound = make(chan []byte, 256)
	c.disconnected = make(chan struct{})
	c.stats.Connected = true
	done := c.disconnected
	c.mu.Unlock()

	go c.receiveLoop(conn, done)
	go c.sendLoop(ctx, conn, done)
}

// MarkConnected records the endpoint label that succeeded, for status
// reporting by the caller (typically the Connection Supervisor).
func (c *Client) MarkConnected(label string) {
	c.mu.Lock()
	c.stats.EndpointLabel = label
	c.mu.Unlock()
}

// MarkDisconnected clears the connected flag without touching the
// owned socket; used when the caller has independently learned the
// connection is gone.
func (c *Client) MarkDisconnected() {
	c.mu.Lock()
	c.stats.Connected = false
	c.mu.Unlock()
}

// Send enqueues a message for transmission, encoding it to the wire
// envelope first. Returns an error only if msgType/payload cannot be
// marshaled; a closed transport silently drops queued sends.
func (c *Client) Send(msgType string, payload any) error {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ch := c.outbound
	c.mu.Unlock()
	if ch == nil {
		return nil // no live transport: drop
	}

	select {
	case ch <- data:
	default:
		// Unbounded in spirit; in practice backstop to avoid an
		// unrecoverable flood from blocking the caller forever.
	}
	return nil
}

// StatsSnapshot returns a concurrency-safe copy of current stats.
func (c *Client) StatsSnapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Disconnected returns a channel that closes exactly once when the
// current transport (the one live when this was called) terminates.
func (c *Client) Disconnected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *Client) receiveLoop(conn *websocket.Conn, done chan struct{}) {
	defer c.fireDisconnect(done)

	conn.SetReadDeadline(time.Now().Add(pingInterval * 3))
	conn.SetPongHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pingInterval * 3))
		if len(data) != 16 {
			return nil
		}
		nonce := binary.LittleEndian.Uint64([]byte(data)[0:8])

		c.mu.Lock()
		if nonce == c.pingNonce && !c.pingSentAt.IsZero() {
			c.stats.LastRTT = time.Since(c.pingSentAt)
		}
		c.mu.Unlock()
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		c.mu.Lock()
		c.stats.MessagesReceived++
		c.stats.BytesReceived += uint64(len(data))
		c.mu.Unlock()

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.mu.Lock()
		cb := c.inbound
		c.mu.Unlock()
		if cb != nil {
			cb(env)
		}
	}
}

func (c *Client) sendLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.fireDisconnect(done)

	c.mu.Lock()
	ch := c.outbound
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			c.mu.Lock()
			c.stats.MessagesSent++
			c.stats.BytesSent += uint64(len(data))
			c.mu.Unlock()
		case <-ticker.C:
			now := time.Now()
			nonce := rand.Uint64()
			c.mu.Lock()
			c.pingNonce = nonce
			c.pingSentAt = now
			c.mu.Unlock()
			if err := conn.WriteMessage(websocket.PingMessage, pingPayload(nonce, now)); err != nil {
				return
			}
		}
	}
}

// fireDisconnect runs once either pump exits: it tears down the
// transport and signals done exactly once, even if both pumps exit
// concurrently.
func (c *Client) fireDisconnect(done chan struct{}) {
	c.mu.Lock()
	if c.disconnected == done {
		select {
		case <-done:
		default:
			close(done)
		}
		c.stats.Connected = false
		c.conn = nil
		c.outbound = nil
		if c.cancel != nil {
			c.cancel()
		}
	}
	c.mu.Unlock()
}

func (c *Client) teardownLocked() {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.outbound != nil {
		close(c.outbound)
	}
}
