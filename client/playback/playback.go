// Package playback implements the Playback Controller (C7), the heart
// of the client: it mediates between the Media Engine and the Sync
// Client, suppresses echoed remote commands, persists and auto-resumes
// sessions, and mirrors room/roster state for the Presentation Host.
package playback

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/hangsync/hang/client/mediaengine"
	"github.com/hangsync/hang/client/persist"
	"github.com/hangsync/hang/client/syncclient"
	"github.com/hangsync/hang/internal/fingerprint"
	"github.com/hangsync/hang/internal/protocol"
)

func decodePayload(env protocol.Envelope, out any) error {
	return json.Unmarshal(env.Payload, out)
}

// echoSuppressionWindow: a remote command arriving within this long of
// the previously applied remote command is dropped, preventing a
// command this client itself caused (via its own emitted SyncCommand
// looping back through SyncBroadcast) from being re-applied as if new.
const echoSuppressionWindow = 100 * time.Millisecond

// MediaIdentity describes the currently loaded media source.
type MediaIdentity struct {
	SourceKind  fingerprint.SourceKind
	Fingerprint string
	DisplayName string
}

// RoomState mirrors the client's view of its current room.
type RoomState struct {
	InRoom          bool
	RoomCode        string
	IsHost          bool
	Roster          []protocol.MemberSummary
	Capacity        int
	PasscodeEnabled bool
	ActivePasscode  string
}

// ErrorFunc surfaces a user-visible error to the Presentation Host.
type ErrorFunc func(message string)

// Controller is the Playback Controller.
type Controller struct {
	engine mediaengine.Engine
	sync   *syncclient.Client
	store  *persist.Store
	onErr  ErrorFunc

	mu                  sync.Mutex
	media               MediaIdentity
	room                RoomState
	lastRemoteCommandAt time.Time
	autoResumeAttempted bool
	syncEnabled         bool
}

// New constructs a Controller driving engine, talking over sc, and
// persisting sessions via store. onErr may be nil.
func New(engine mediaengine.Engine, sc *syncclient.Client, store *persist.Store, onErr ErrorFunc) *Controller {
	if onErr == nil {
		onErr = func(string) {}
	}
	return &Controller{
		engine:      engine,
		sync:        sc,
		store:       store,
		onErr:       onErr,
		syncEnabled: true,
	}
}

// SetSyncEnabled toggles whether outbound intent is broadcast; it never
// affects local Media Engine control.
func (c *Controller) SetSyncEnabled(enabled bool) {
	c.mu.Lock()
	c.syncEnabled = enabled
	c.mu.Unlock()
}

// LoadMedia records the currently loaded media's identity.
func (c *Controller) LoadMedia(id MediaIdentity) {
	c.mu.Lock()
	c.media = id
	c.mu.Unlock()
}

// RoomSnapshot returns a copy of the current room mirror.
func (c *Controller) RoomSnapshot() RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// --- Outbound intent path ---

// TogglePlay flips local playback and, if syncing, emits Play/Pause.
func (c *Controller) TogglePlay() {
	c.mu.Lock()
	playing := c.engine.IsPlaying()
	c.mu.Unlock()

	if playing {
		c.engine.Pause()
		c.emitIntent(protocol.CommandPause, c.engine.Position(), 0)
	} else {
		c.engine.Play()
		c.emitIntent(protocol.CommandPlay, c.engine.Position(), 0)
	}
}

// Seek moves playback to positionSeconds and, if syncing, emits Seek.
func (c *Controller) Seek(positionSeconds float64) {
	c.engine.Seek(positionSeconds)
	c.emitIntent(protocol.CommandSeek, positionSeconds, 0)
}

// SetSpeed changes playback rate and, if syncing, emits Speed.
// Volume changes are local-only and are never broadcast: SetSpeed (not
// volume) is the only continuous-parameter intent this controller
// exposes to the wire.
func (c *Controller) SetSpeed(rate float64) {
	c.engine.SetRate(rate)
	c.emitIntent(protocol.CommandSpeed, 0, rate)
}

func (c *Controller) emitIntent(kind string, ts, rate float64) {
	c.mu.Lock()
	enabled := c.syncEnabled
	inRoom := c.room.InRoom
	c.mu.Unlock()

	if !enabled || !inRoom {
		return
	}
	_ = c.sync.Send(protocol.TypeSyncCommand, protocol.SyncCommand{Kind: kind, Ts: ts, Rate: rate})
}

// --- Inbound command path ---

// HandleInbound dispatches one decoded service->client envelope. It is
// the single entry point the Sync Client's InboundFunc should call.
func (c *Controller) HandleInbound(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeRoomCreated:
		c.handleRoomEntered(env, true)
	case protocol.TypeRoomJoined:
		c.handleRoomEntered(env, false)
	case protocol.TypeRoomLeft:
		c.handleRoomLeft()
	case protocol.TypeRoomNotFound:
		c.onErr("Room not found")
	case protocol.TypeRoomFull:
		c.onErr("Room is full")
	case protocol.TypeFileHashMismatch:
		c.onErr("Loaded file does not match the room's file")
	case protocol.TypeRoomMemberUpdate:
		c.handleMemberUpdate(env)
	case protocol.TypeSyncBroadcast:
		c.handleSyncBroadcast(env)
	case protocol.TypeError:
		c.handleError(env)
	case protocol.TypeSessionInvalid:
		if c.store != nil {
			_ = c.store.Clear()
		}
	}
}

func (c *Controller) handleSyncBroadcast(env protocol.Envelope) {
	var payload protocol.SyncBroadcastPayload
	if err := decodePayload(env, &payload); err != nil {
		return
	}

	c.mu.Lock()
	now := time.Now()
	if !c.lastRemoteCommandAt.IsZero() && now.Sub(c.lastRemoteCommandAt) < echoSuppressionWindow {
		c.mu.Unlock()
		return
	}
	c.lastRemoteCommandAt = now
	c.mu.Unlock()

	cmd := payload.Command
	switch cmd.Kind {
	case protocol.CommandPlay:
		c.engine.Seek(cmd.Ts)
		c.engine.Play()
	case protocol.CommandPause:
		c.engine.Seek(cmd.Ts)
		c.engine.Pause()
	case protocol.CommandSeek:
		c.engine.Seek(cmd.Ts)
	case protocol.CommandSpeed:
		c.engine.SetRate(cmd.Rate)
	case protocol.CommandStop:
		c.engine.Stop()
	}
}

func (c *Controller) handleRoomEntered(env protocol.Envelope, isCreate bool) {
	var roomID, resumeToken, fileHash, displayName string
	var capacity int
	var passcodeEnabled, isHost bool

	if isCreate {
		var p protocol.RoomCreatedPayload
		if err := decodePayload(env, &p); err != nil {
			return
		}
		roomID, resumeToken, fileHash, displayName = p.RoomID, p.ResumeToken, p.FileHash, p.DisplayName
		capacity, passcodeEnabled, isHost = p.Capacity, p.PasscodeEnabled, true
	} else {
		var p protocol.RoomJoinedPayload
		if err := decodePayload(env, &p); err != nil {
			return
		}
		roomID, resumeToken, fileHash, displayName = p.RoomID, p.ResumeToken, p.FileHash, p.DisplayName
		capacity, passcodeEnabled, isHost = p.Capacity, p.PasscodeEnabled, p.IsHost
	}

	c.mu.Lock()
	c.room.InRoom = true
	c.room.RoomCode = roomID
	c.room.IsHost = isHost
	c.room.Capacity = capacity
	c.room.PasscodeEnabled = passcodeEnabled
	c.room.ActivePasscode = ""
	c.media.DisplayName = displayName
	c.mu.Unlock()

	if c.store != nil {
		_ = c.store.Save(persist.Session{
			RoomID:      roomID,
			ResumeToken: resumeToken,
			FileHash:    fileHash,
			IsHost:      isHost,
		})
	}
}

func (c *Controller) handleRoomLeft() {
	c.clearRoomState()
	if c.store != nil {
		_ = c.store.Clear()
	}
}

func (c *Controller) handleMemberUpdate(env protocol.Envelope) {
	var p protocol.RoomMemberUpdatePayload
	if err := decodePayload(env, &p); err != nil {
		return
	}
	c.mu.Lock()
	c.room.Roster = p.Members
	c.room.Capacity = p.Capacity
	c.mu.Unlock()
}

func (c *Controller) handleError(env protocol.Envelope) {
	var p protocol.ErrorPayload
	if err := decodePayload(env, &p); err != nil {
		return
	}
	if strings.Contains(p.Message, "Session token") && c.store != nil {
		_ = c.store.Clear()
	}
	c.onErr(p.Message)
}

// --- Connection lifecycle ---

// OnConnected is called by the caller once the Sync Client reports a
// fresh connection. It attempts a single auto-resume if a persisted
// session exists and the controller is not already in a room.
func (c *Controller) OnConnected() {
	c.mu.Lock()
	alreadyInRoom := c.room.InRoom
	attempted := c.autoResumeAttempted
	c.mu.Unlock()

	if alreadyInRoom || attempted || c.store == nil {
		return
	}

	sess, ok := c.store.Load()
	if !ok {
		return
	}

	c.mu.Lock()
	c.autoResumeAttempted = true
	c.mu.Unlock()

	_ = c.sync.Send(protocol.TypeResumeSession, protocol.ResumeSessionPayload{Token: sess.ResumeToken})
}

// OnDisconnected clears in-room state (the persisted session survives,
// so a subsequent reconnect can auto-resume).
func (c *Controller) OnDisconnected() {
	c.clearRoomState()
}

func (c *Controller) clearRoomState() {
	c.mu.Lock()
	c.room = RoomState{}
	c.mu.Unlock()
}

// --- Admission ---

// CreateRoom sends CreateRoom if currently connected, or reports a
// user-visible error otherwise (the controller never queues admission
// requests for a future connection).
func (c *Controller) CreateRoom(fileHash, passcode, displayName string, capacity int) {
	if !c.connected() {
		c.onErr("Not connected")
		return
	}
	_ = c.sync.Send(protocol.TypeCreateRoom, protocol.CreateRoomPayload{
		FileHash:    fileHash,
		Passcode:    NormalizePasscode(passcode),
		DisplayName: displayName,
		Capacity:    capacity,
	})
}

// JoinRoom sends JoinRoom if currently connected, or reports a
// user-visible error otherwise.
func (c *Controller) JoinRoom(roomID, fileHash, passcode, displayName string) {
	if !c.connected() {
		c.onErr("Not connected")
		return
	}
	_ = c.sync.Send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		RoomID:      roomID,
		FileHash:    fileHash,
		Passcode:    NormalizePasscode(passcode),
		DisplayName: displayName,
	})
}

// LeaveRoom sends LeaveRoom if connected.
func (c *Controller) LeaveRoom() {
	if !c.connected() {
		return
	}
	_ = c.sync.Send(protocol.TypeLeaveRoom, struct{}{})
}

func (c *Controller) connected() bool {
	return c.sync.StatsSnapshot().Connected
}

// NormalizePasscode trims whitespace; an all-whitespace passcode
// becomes absent (empty string), matching the service's treatment of
// "no passcode".
func NormalizePasscode(raw string) string {
	return strings.TrimSpace(raw)
}
