// Package persist implements the client-side Persisted Session Store
// (C17): the {room_id, resume_token, file_hash, is_host} tuple the
// Playback Controller reloads at startup and writes on every successful
// join/create, so a restart can auto-resume.
package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	appNamespace    = "hang"
	sessionFileName = "session.json"
	portableMarker  = "portable.txt"
)

// Session is the on-disk representation of the client's last known room
// membership.
type Session struct {
	RoomID      string `json:"room_id"`
	ResumeToken string `json:"resume_token"`
	FileHash    string `json:"file_hash"`
	IsHost      bool   `json:"is_host"`
}

// Store resolves the session file path once and reads/writes it
// atomically.
type Store struct {
	path string
}

// New resolves the data directory: if a portable.txt marker sits next
// to execPath, a data/ directory beside the executable is used;
// otherwise os.UserConfigDir()/hang is used.
func New(execPath string) (*Store, error) {
	dir := filepath.Dir(execPath)
	if _, err := os.Stat(filepath.Join(dir, portableMarker)); err == nil {
		dataDir := filepath.Join(dir, "data")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, err
		}
		return &Store{path: filepath.Join(dataDir, sessionFileName)}, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	appDir := filepath.Join(configDir, appNamespace)
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(appDir, sessionFileName)}, nil
}

// Load reads the persisted session, returning ok=false if none exists
// yet (first run, or already cleared).
func (s *Store) Load() (Session, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Session{}, false
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, false
	}
	if sess.RoomID == "" || sess.ResumeToken == "" {
		return Session{}, false
	}
	return sess, true
}

// Save writes sess atomically: to a temp file in the same directory,
// then renamed over the target, so a crash mid-write never corrupts
// the previously persisted session.
func (s *Store) Save(sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Clear removes the persisted session entirely, e.g. on LeaveRoom or an
// invalid-token error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
