package hub

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hangsync/hang/internal/metrics"
	"github.com/hangsync/hang/internal/protocol"
	"github.com/hangsync/hang/internal/roomregistry"
)

func (h *Hub) handleCreateRoom(ctx context.Context, c *Client, env protocol.Envelope) {
	var p protocol.CreateRoomPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(c, "malformed CreateRoom payload")
		return
	}

	if h.limiter != nil && !h.limiter.CheckCreateRoom(ctx, c.ID) {
		h.sendError(c, "rate limit exceeded")
		return
	}

	roomCode, passcodeEnabled, capacity, resolvedName, err := h.registry.CreateRoom(c.ID, p.FileHash, p.Passcode, p.DisplayName, p.Capacity)
	if err != nil {
		h.sendError(c, "failed to create room")
		return
	}

	token, err := h.sessions.Remember(c.ID, roomCode, p.FileHash, true, resolvedName)
	if err != nil {
		h.sendError(c, "failed to issue resume token")
		return
	}

	c.DisplayName = resolvedName
	h.registerConn(roomCode, c)

	h.sendTo(c, protocol.TypeRoomCreated, protocol.RoomCreatedPayload{
		RoomID:          roomCode,
		ClientID:        c.ID,
		PasscodeEnabled: passcodeEnabled,
		FileHash:        p.FileHash,
		ResumeToken:     token,
		Capacity:        capacity,
		DisplayName:     resolvedName,
	})
}

func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, env protocol.Envelope) {
	var p protocol.JoinRoomPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(c, "malformed JoinRoom payload")
		return
	}

	if h.limiter != nil && !h.limiter.CheckJoinRoom(ctx, c.ID) {
		h.sendError(c, "rate limit exceeded")
		return
	}

	isHost, canonicalHash, capacity, resolvedName, passcodeEnabled, err := h.registry.JoinRoom(c.ID, p.RoomID, p.FileHash, p.Passcode, p.DisplayName)
	if err != nil {
		h.sendJoinFailure(c, err)
		return
	}

	token, err := h.sessions.Remember(c.ID, p.RoomID, canonicalHash, isHost, resolvedName)
	if err != nil {
		h.sendError(c, "failed to issue resume token")
		return
	}

	c.DisplayName = resolvedName
	h.registerConn(p.RoomID, c)

	h.sendTo(c, protocol.TypeRoomJoined, protocol.RoomJoinedPayload{
		RoomID:          p.RoomID,
		ClientID:        c.ID,
		PasscodeEnabled: passcodeEnabled,
		FileHash:        canonicalHash,
		ResumeToken:     token,
		Capacity:        capacity,
		DisplayName:     resolvedName,
		IsHost:          isHost,
	})
	h.broadcastMemberUpdate(p.RoomID)
}

func (h *Hub) sendJoinFailure(c *Client, err error) {
	var fhErr *roomregistry.FileHashMismatchError
	var rfErr *roomregistry.RoomFullError

	switch {
	case errors.Is(err, roomregistry.ErrRoomNotFound):
		h.sendTo(c, protocol.TypeRoomNotFound, struct{}{})
	case errors.As(err, &fhErr):
		h.sendTo(c, protocol.TypeFileHashMismatch, protocol.FileHashMismatchPayload{Expected: fhErr.Expected})
	case errors.As(err, &rfErr):
		h.sendTo(c, protocol.TypeRoomFull, protocol.RoomFullPayload{Capacity: rfErr.Capacity})
	case errors.Is(err, roomregistry.ErrPasscodeRequired), errors.Is(err, roomregistry.ErrPasscodeInvalid):
		h.sendError(c, "passcode required or invalid")
	default:
		h.sendError(c, "failed to join room")
	}
}

func (h *Hub) handleResumeSession(ctx context.Context, c *Client, env protocol.Envelope) {
	var p protocol.ResumeSessionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(c, "malformed ResumeSession payload")
		return
	}

	record, err := h.sessions.Resume(p.Token)
	if err != nil {
		h.sendSessionInvalid(c)
		return
	}

	// Cancel any grace-period departure for the old identity, seat the new
	// identity, then vacate the old seat. Both steps finish before any
	// roster goes out, so no broadcast shows both identities, and a room
	// whose only member is resuming never passes through empty.
	h.cancelGraceDeparture(record.ClientID)

	displayName := p.DisplayName
	if displayName == "" {
		displayName = record.DisplayName
	}

	if record.WasHost {
		if err := h.registry.ReassignHost(record.RoomID, c.ID, displayName); err != nil {
			h.sendSessionInvalid(c)
			return
		}
	} else if err := h.registry.AddMember(record.RoomID, c.ID, displayName); err != nil {
		h.sendSessionInvalid(c)
		return
	}
	h.registry.LeaveRoom(record.ClientID, record.RoomID)

	newToken, err := h.sessions.Remember(c.ID, record.RoomID, record.FileHash, record.WasHost, displayName)
	if err != nil {
		h.sendError(c, "failed to issue resume token")
		return
	}

	snap, _ := h.registry.RoomSnapshot(record.RoomID)
	c.DisplayName = displayName
	h.registerConn(record.RoomID, c)

	h.sendTo(c, protocol.TypeRoomJoined, protocol.RoomJoinedPayload{
		RoomID:          record.RoomID,
		ClientID:        c.ID,
		PasscodeEnabled: snap.PasscodeEnabled,
		FileHash:        record.FileHash,
		ResumeToken:     newToken,
		Capacity:        snap.Capacity,
		DisplayName:     displayName,
		IsHost:          record.WasHost,
	})
	h.broadcastMemberUpdate(record.RoomID)
}

func (h *Hub) cancelGraceDeparture(clientID string) {
	h.mu.Lock()
	if timer, ok := h.pendingLeave[clientID]; ok {
		timer.Stop()
		delete(h.pendingLeave, clientID)
	}
	h.mu.Unlock()
}

func (h *Hub) handleLeaveRoom(ctx context.Context, c *Client) {
	roomCode := c.getRoomCode()
	if roomCode == "" {
		return
	}

	h.cancelGraceDeparture(c.ID)
	h.deregisterConn(roomCode, c.ID)
	c.setRoomCode("")
	h.sessions.Clear(c.ID)

	snap, hadRoom := h.registry.RoomSnapshot(roomCode)
	destroyed := h.registry.LeaveRoom(c.ID, roomCode)

	h.sendTo(c, protocol.TypeRoomLeft, struct{}{})

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

// handleSyncCommand implements the Fan-out Engine (C4): wraps the
// command and delivers it to every connected member of the sender's
// room, including the sender, per the fixed originator-inclusive policy.
func (h *Hub) handleSyncCommand(ctx context.Context, c *Client, env protocol.Envelope) {
	var cmd protocol.SyncCommand
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		h.sendError(c, "malformed SyncCommand payload")
		return
	}

	roomCode := c.getRoomCode()
	if roomCode == "" {
		return // no room: drop silently per fan-out engine spec
	}

	payload := protocol.SyncBroadcastPayload{FromClient: c.ID, Command: cmd}
	for _, member := range h.connsFor(roomCode) {
		data, err := protocol.Encode(protocol.TypeSyncBroadcast, payload)
		if err != nil {
			continue
		}
		if member.enqueue(data) {
			metrics.SyncBroadcasts.WithLabelValues(cmd.Kind, "delivered").Inc()
		} else {
			metrics.SyncBroadcasts.WithLabelValues(cmd.Kind, "channel_full_dropped").Inc()
		}
	}

	if h.busSvc != nil {
		_ = h.busSvc.Publish(ctx, roomCode, "sync_broadcast", payload, c.ID)
	}
}
