// Package sessionstore implements the Session Store (C3): issuance,
// rotation, and single-use redemption of resume tokens tied to
// (client, room, role).
//
// A resume token is a self-signed HS256 JWT (ResumeClaims) carrying
// everything needed to rebind a reconnecting client to its prior room.
// The JWT signature authenticates the claims, but signature validity
// alone does not give single-use semantics, so the Store additionally
// tracks the one currently-live jti per client_id; remember() overwrites
// it (invalidating whatever jti preceded it) and resume() removes it on
// lookup, consuming it.
package sessionstore

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenInvalid covers every redemption failure: unknown/expired jti,
// bad signature, or malformed claims. The Session error kind in the
// error handling design surfaces all of these identically as
// "Session token invalid or expired".
var ErrTokenInvalid = errors.New("session token invalid or expired")

// ResumeClaims are the JWT claims carried by a resume token.
type ResumeClaims struct {
	ClientID    string `json:"client_id"`
	RoomID      string `json:"room_id"`
	FileHash    string `json:"file_hash"`
	WasHost     bool   `json:"was_host"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// Record is the decoded, already-authenticated content of a redeemed
// resume token.
type Record struct {
	ClientID    string
	RoomID      string
	FileHash    string
	WasHost     bool
	DisplayName string
}

// Store issues and redeems resume tokens.
type Store struct {
	secret []byte

	mu      sync.Mutex
	liveJTI map[string]string // client_id -> the one currently-redeemable jti
}

// New builds a Store signing tokens with secret (Config.ResumeTokenSecret).
func New(secret string) *Store {
	return &Store{
		secret:  []byte(secret),
		liveJTI: make(map[string]string),
	}
}

// Remember mints a fresh opaque resume token for clientID, invalidating
// whatever token it previously held (rotation is atomic: the prior jti
// is simply overwritten before the new one becomes valid).
func (s *Store) Remember(clientID, roomCode, fileHash string, wasHost bool, displayName string) (token string, err error) {
	jti := uuid.NewString()

	claims := ResumeClaims{
		ClientID:    clientID,
		RoomID:      roomCode,
		FileHash:    fileHash,
		WasHost:     wasHost,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       jti,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.liveJTI[clientID] = jti
	s.mu.Unlock()

	return signed, nil
}

// Resume redeems token for a new connection. Single-use: the presented
// jti is removed from the live table before this function returns,
// whether or not the caller goes on to call Remember again for a fresh
// token. Returns ErrTokenInvalid on bad signature, unknown jti, or a
// jti that is no longer the live one for its client_id (already
// consumed, or superseded by a later Remember).
func (s *Store) Resume(tokenStr string) (Record, error) {
	var claims ResumeClaims
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Record{}, ErrTokenInvalid
	}

	s.mu.Lock()
	live, ok := s.liveJTI[claims.ClientID]
	if !ok || live != claims.ID {
		s.mu.Unlock()
		return Record{}, ErrTokenInvalid
	}
	delete(s.liveJTI, claims.ClientID)
	s.mu.Unlock()

	return Record{
		ClientID:    claims.ClientID,
		RoomID:      claims.RoomID,
		FileHash:    claims.FileHash,
		WasHost:     claims.WasHost,
		DisplayName: claims.DisplayName,
	}, nil
}

// Clear drops clientID's live token, e.g. on an explicit LeaveRoom.
func (s *Store) Clear(clientID string) {
	s.mu.Lock()
	delete(s.liveJTI, clientID)
	s.mu.Unlock()
}

// ClearAllForRoom drops the live token of every client in clientIDs,
// the members of a room being destroyed. The caller supplies the member list
// (from the Registry's snapshot taken before room destruction), since
// the Store itself does not track room membership.
func (s *Store) ClearAllForRoom(clientIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range clientIDs {
		delete(s.liveJTI, id)
	}
}
