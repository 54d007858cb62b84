// Package hub implements the websocket-facing half of the Room
// Coordination Service: admission (upgrade + rate limiting), the
// per-connection Client, and the Fan-out Engine (C4) that routes
// SyncCommand traffic to room co-members.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hangsync/hang/internal/bus"
	"github.com/hangsync/hang/internal/logging"
	"github.com/hangsync/hang/internal/metrics"
	"github.com/hangsync/hang/internal/protocol"
	"github.com/hangsync/hang/internal/ratelimit"
	"github.com/hangsync/hang/internal/roomregistry"
	"github.com/hangsync/hang/internal/sessionstore"
)

// echoSuppressionWindow mirrors the client-side debounce (Playback
// Controller, C7); nothing in the service reads it. The service
// has no echo-suppression logic of its own — it broadcasts unconditionally
// to every room member including the sender, per the originator-inclusive
// policy fixed in the wire protocol.
const echoSuppressionWindow = 100 * time.Millisecond

// Hub owns every live connection and room in this instance.
type Hub struct {
	registry       *roomregistry.Registry
	sessions       *sessionstore.Store
	limiter        *ratelimit.RateLimiter // optional; nil disables admission limiting
	busSvc         *bus.Service           // optional; nil disables cross-instance fan-out
	allowedOrigins []string

	gracePeriod time.Duration

	mu            sync.Mutex
	roomConns     map[string]map[string]*Client // room code -> client id -> live connection
	pendingLeave  map[string]*time.Timer        // client id -> grace-period departure timer
	roomSubCancel map[string]context.CancelFunc // room code -> cancel for this instance's bus subscription
}

// New constructs a Hub. limiter and busSvc may be nil.
func New(registry *roomregistry.Registry, sessions *sessionstore.Store, limiter *ratelimit.RateLimiter, busSvc *bus.Service, gracePeriod time.Duration, allowedOrigins []string) *Hub {
	return &Hub{
		registry:       registry,
		sessions:       sessions,
		limiter:        limiter,
		busSvc:         busSvc,
		allowedOrigins: allowedOrigins,
		gracePeriod:    gracePeriod,
		roomConns:      make(map[string]map[string]*Client),
		pendingLeave:   make(map[string]*time.Timer),
		roomSubCancel:  make(map[string]context.CancelFunc),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ServeWs upgrades an HTTP request to a websocket connection and starts
// the new Client's read/write pumps.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.limiter != nil && !h.limiter.CheckConnect(c) {
		return // CheckConnect already wrote the 429 response
	}

	if err := h.validateOrigin(c.Request); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		hub:    h,
		send:   make(chan []byte, 256),
		closed: make(chan struct{}),
		ID:     uuid.NewString(),
	}

	metrics.IncConnection()
	go client.writePump()
	go client.readPump()
}

func (h *Hub) validateOrigin(r *http.Request) error {
	if len(h.allowedOrigins) == 0 {
		return nil // no allowlist configured: permit (dev default)
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	for _, allowed := range h.allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return nil
		}
	}
	return errors.New("origin not allowed")
}

// handleFrame decodes one inbound frame and dispatches it by discriminator.
func (h *Hub) handleFrame(c *Client, data []byte) {
	ctx := context.WithValue(context.Background(), logging.ClientIDKey, c.ID)
	if roomCode := c.getRoomCode(); roomCode != "" {
		ctx = context.WithValue(ctx, logging.RoomIDKey, roomCode)
	}
	start := time.Now()

	env, err := protocol.Decode(data)
	if err != nil {
		logging.Warn(ctx, "malformed frame", zap.String("client_id", c.ID))
		h.sendError(c, "malformed message")
		return
	}

	defer func() {
		metrics.MessageProcessingDuration.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())
	}()

	switch env.Type {
	case protocol.TypeCreateRoom:
		h.handleCreateRoom(ctx, c, env)
	case protocol.TypeJoinRoom:
		h.handleJoinRoom(ctx, c, env)
	case protocol.TypeResumeSession:
		h.handleResumeSession(ctx, c, env)
	case protocol.TypeLeaveRoom:
		h.handleLeaveRoom(ctx, c)
	case protocol.TypeSyncCommand:
		h.handleSyncCommand(ctx, c, env)
	default:
		metrics.WebsocketEvents.WithLabelValues(env.Type, "unknown").Inc()
		logging.Warn(ctx, "unknown discriminator", zap.String("type", env.Type))
		h.sendError(c, "unknown message type")
	}
}

func (h *Hub) sendError(c *Client, message string) {
	h.sendTo(c, protocol.TypeError, protocol.ErrorPayload{Message: message})
}

// sendSessionInvalid emits the legacy Error{message} frame alongside a
// typed SessionInvalid frame, per design note 1: a client can migrate off
// matching the Error message substring onto the discriminator while older
// clients keep working unmodified.
func (h *Hub) sendSessionInvalid(c *Client) {
	h.sendError(c, "Session token invalid or expired")
	h.sendTo(c, protocol.TypeSessionInvalid, struct{}{})
}

func (h *Hub) sendTo(c *Client, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		slog.Error("failed to encode outbound message", "type", msgType, "error", err)
		return
	}
	if !c.enqueue(data) {
		metrics.WebsocketEvents.WithLabelValues(msgType, "channel_full_dropped").Inc()
		return
	}
	metrics.WebsocketEvents.WithLabelValues(msgType, "delivered").Inc()
}

// registerConn adds c to the live connection set for roomCode and
// cancels any pending grace-period departure timer for this client id.
func (h *Hub) registerConn(roomCode string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if timer, ok := h.pendingLeave[c.ID]; ok {
		timer.Stop()
		delete(h.pendingLeave, c.ID)
	}

	conns, ok := h.roomConns[roomCode]
	if !ok {
		conns = make(map[string]*Client)
		h.roomConns[roomCode] = conns
		metrics.ActiveRooms.Inc()
		h.subscribeRoomLocked(roomCode)
	}
	conns[c.ID] = c
	c.setRoomCode(roomCode)
	metrics.RoomParticipants.WithLabelValues(roomCode).Set(float64(len(conns)))
}

// subscribeRoomLocked starts this instance's cross-instance bus
// subscription for roomCode's first local connection. h.mu must already
// be held. A no-op in single-instance mode (busSvc nil).
func (h *Hub) subscribeRoomLocked(roomCode string) {
	if h.busSvc == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.roomSubCancel[roomCode] = cancel
	h.busSvc.Subscribe(ctx, roomCode, nil, func(payload bus.PubSubPayload) {
		h.relayCrossInstanceEvent(roomCode, payload)
	})
}

// unsubscribeRoomLocked tears down roomCode's bus subscription once its
// last local connection is gone. h.mu must already be held.
func (h *Hub) unsubscribeRoomLocked(roomCode string) {
	if cancel, ok := h.roomSubCancel[roomCode]; ok {
		cancel()
		delete(h.roomSubCancel, roomCode)
	}
}

// relayCrossInstanceEvent rebroadcasts a RoomMemberUpdate or
// SyncBroadcast received over the bus from a peer instance to this
// instance's local connections for roomCode, so a client connected to
// instance B sees state that originated on instance A.
func (h *Hub) relayCrossInstanceEvent(roomCode string, payload bus.PubSubPayload) {
	var msgType string
	switch payload.Event {
	case "member_update":
		msgType = protocol.TypeRoomMemberUpdate
	case "sync_broadcast":
		msgType = protocol.TypeSyncBroadcast
	default:
		return
	}

	data, err := json.Marshal(protocol.Envelope{Type: msgType, Payload: payload.Payload})
	if err != nil {
		slog.Error("failed to encode relayed bus event", "event", payload.Event, "error", err)
		return
	}
	for _, c := range h.connsFor(roomCode) {
		if c.enqueue(data) {
			metrics.WebsocketEvents.WithLabelValues(msgType, "delivered").Inc()
		} else {
			metrics.WebsocketEvents.WithLabelValues(msgType, "channel_full_dropped").Inc()
		}
	}
}

// deregisterConn removes c from its room's live connection set (socket
// closed or an old identity superseded by resume). It never touches
// Registry membership; callers decide separately whether to vacate the
// Registry seat immediately or after a grace period.
func (h *Hub) deregisterConn(roomCode, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.roomConns[roomCode]
	if !ok {
		return
	}
	delete(conns, clientID)
	if len(conns) == 0 {
		delete(h.roomConns, roomCode)
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(roomCode)
		h.unsubscribeRoomLocked(roomCode)
	} else {
		metrics.RoomParticipants.WithLabelValues(roomCode).Set(float64(len(conns)))
	}
}

func (h *Hub) connsFor(roomCode string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.roomConns[roomCode]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// broadcastMemberUpdate fans a fresh roster snapshot out to every
// connected member of roomCode.
func (h *Hub) broadcastMemberUpdate(roomCode string) {
	snap, ok := h.registry.RoomSnapshot(roomCode)
	if !ok {
		return
	}
	members := make([]protocol.MemberSummary, 0, len(snap.Roster))
	hostID, _ := h.registry.HostID(roomCode)
	for _, m := range snap.Roster {
		members = append(members, protocol.MemberSummary{
			ClientID:    m.ClientID,
			DisplayName: m.DisplayName,
			IsHost:      m.ClientID == hostID,
		})
	}
	payload := protocol.RoomMemberUpdatePayload{RoomID: roomCode, Members: members, Capacity: snap.Capacity}

	for _, c := range h.connsFor(roomCode) {
		h.sendTo(c, protocol.TypeRoomMemberUpdate, payload)
	}
	if h.busSvc != nil {
		_ = h.busSvc.Publish(context.Background(), roomCode, "member_update", payload, "")
	}
}

// handleDisconnect runs when a socket closes without a preceding
// explicit LeaveRoom. It does not vacate the Registry seat immediately:
// a grace-period timer gives a reconnecting client time to redeem its
// resume token before the room treats the member as gone.
func (h *Hub) handleDisconnect(c *Client) {
	roomCode := c.getRoomCode()
	if roomCode == "" {
		return
	}
	h.deregisterConn(roomCode, c.ID)
	h.scheduleGraceDeparture(c.ID, roomCode)
}

func (h *Hub) scheduleGraceDeparture(clientID, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.pendingLeave[clientID]; ok {
		existing.Stop()
	}
	h.pendingLeave[clientID] = time.AfterFunc(h.gracePeriod, func() {
		h.mu.Lock()
		delete(h.pendingLeave, clientID)
		h.mu.Unlock()
		h.vacateSeat(clientID, roomCode)
	})
}

// vacateSeat removes clientID from the Registry's member set, destroying
// the room (and every resume token bound to it) if that was the last
// member, satisfying invariant 2.
func (h *Hub) vacateSeat(clientID, roomCode string) {
	snap, hadRoom := h.registry.RoomSnapshot(roomCode)
	destroyed := h.registry.LeaveRoom(clientID, roomCode)
	if destroyed != "" && hadRoom {
		ids := make([]string, 0, len(snap.Roster))
		for _, m := range snap.Roster {
			ids = append(ids, m.ClientID)
		}
		h.sessions.ClearAllForRoom(ids)
		return
	}
	h.broadcastMemberUpdate(roomCode)
}

// Shutdown closes the send queue of every connection currently registered
// in a room, used during graceful server shutdown. Connections that have
// not joined a room are not closed here.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for _, timer := range h.pendingLeave {
		timer.Stop()
	}
	h.pendingLeave = make(map[string]*time.Timer)

	for _, cancel := range h.roomSubCancel {
		cancel()
	}
	h.roomSubCancel = make(map[string]context.CancelFunc)

	var allConns []*Client
	for _, conns := range h.roomConns {
		for _, c := range conns {
			allConns = append(allConns, c)
		}
	}
	h.mu.Unlock()

	for _, c := range allConns {
		close(c.send)
	}
	slog.Info("hub shutdown complete", "closed_connections", len(allConns))
	return nil
}
