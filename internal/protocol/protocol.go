// Package protocol defines the wire messages exchanged over Hang's single
// full-duplex websocket: UTF-8 JSON text frames, one message object per
// frame, each carrying a discriminator and a payload.
package protocol

import "encoding/json"

// Discriminator values for client→service messages.
const (
	TypeCreateRoom    = "CreateRoom"
	TypeJoinRoom      = "JoinRoom"
	TypeResumeSession = "ResumeSession"
	TypeLeaveRoom     = "LeaveRoom"
	TypeSyncCommand   = "SyncCommand"
)

// Discriminator values for service→client messages.
const (
	TypeRoomCreated      = "RoomCreated"
	TypeRoomJoined       = "RoomJoined"
	TypeRoomLeft         = "RoomLeft"
	TypeRoomNotFound     = "RoomNotFound"
	TypeRoomFull         = "RoomFull"
	TypeFileHashMismatch = "FileHashMismatch"
	TypeSyncBroadcast    = "SyncBroadcast"
	TypeRoomMemberUpdate = "RoomMemberUpdate"
	TypeError            = "Error"
	// TypeSessionInvalid is sent alongside a legacy Error{message} frame
	// whenever a resume token fails redemption, so a client can switch
	// off the discriminator instead of matching the Error message text.
	TypeSessionInvalid = "SessionInvalid"
)

// Envelope is the outer shape of every frame: a discriminator plus a
// raw payload that each message type unmarshals for itself.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Sync command kinds (§3 Sync Command value).
const (
	CommandPlay  = "Play"
	CommandPause = "Pause"
	CommandSeek  = "Seek"
	CommandSpeed = "Speed"
	CommandStop  = "Stop"
)

// SyncCommand is the tagged variant {Play(ts), Pause(ts), Seek(ts),
// Speed(rate), Stop}. Only the fields relevant to Kind are populated;
// Ts is seconds, Rate is a positive multiplier.
type SyncCommand struct {
	Kind string  `json:"kind"`
	Ts   float64 `json:"ts,omitempty"`
	Rate float64 `json:"rate,omitempty"`
}

// --- Client -> service payloads ---

type CreateRoomPayload struct {
	FileHash    string `json:"file_hash"`
	Passcode    string `json:"passcode,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Capacity    int    `json:"capacity,omitempty"`
}

type JoinRoomPayload struct {
	RoomID      string `json:"room_id"`
	FileHash    string `json:"file_hash"`
	Passcode    string `json:"passcode,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type ResumeSessionPayload struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name,omitempty"`
}

// LeaveRoom and SyncCommand messages carry SyncCommand/empty payloads
// directly; SyncCommand uses the SyncCommand type above as its payload.

// --- Service -> client payloads ---

// MemberSummary is one entry in a room roster.
type MemberSummary struct {
	ClientID    string `json:"client_id"`
	DisplayName string `json:"display_name"`
	IsHost      bool   `json:"is_host"`
}

type RoomCreatedPayload struct {
	RoomID          string `json:"room_id"`
	ClientID        string `json:"client_id"`
	PasscodeEnabled bool   `json:"passcode_enabled"`
	FileHash        string `json:"file_hash"`
	ResumeToken     string `json:"resume_token"`
	Capacity        int    `json:"capacity"`
	DisplayName     string `json:"display_name"`
}

type RoomJoinedPayload struct {
	RoomID          string `json:"room_id"`
	ClientID        string `json:"client_id"`
	PasscodeEnabled bool   `json:"passcode_enabled"`
	FileHash        string `json:"file_hash"`
	ResumeToken     string `json:"resume_token"`
	Capacity        int    `json:"capacity"`
	DisplayName     string `json:"display_name"`
	IsHost          bool   `json:"is_host"`
}

type RoomFullPayload struct {
	Capacity int `json:"capacity"`
}

type FileHashMismatchPayload struct {
	Expected string `json:"expected"`
}

type SyncBroadcastPayload struct {
	FromClient string      `json:"from_client"`
	Command    SyncCommand `json:"command"`
}

type RoomMemberUpdatePayload struct {
	RoomID   string          `json:"room_id"`
	Members  []MemberSummary `json:"members"`
	Capacity int             `json:"capacity"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode wraps a typed payload into an Envelope and marshals it to bytes
// ready to write as a websocket text frame.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Decode parses a frame into its Envelope; callers then unmarshal
// Payload into the concrete type indicated by Type.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
