// Package ipc implements the client's Single-Instance IPC (C16): a
// loopback listener that lets a second launch of the client hand its
// invite-URL argument to the already-running primary instance instead
// of opening a second room session.
package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Port is the fixed loopback TCP port used for single-instance
// handoff. Fixed rather than configurable: two cooperating instances
// on the same machine must agree on it without prior coordination.
const Port = 47291

// InvitePayload is the single JSON object exchanged over the loopback
// connection.
type InvitePayload struct {
	URL string `json:"url"`
}

// TryBecomePrimary attempts to bind the loopback port. On success it
// returns a listener the caller should run Serve on for the lifetime of
// the process. On failure (another instance already bound it) it
// returns ok=false; the caller should instead call SendToPrimary and
// exit.
func TryBecomePrimary() (ln net.Listener, ok bool) {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", Port))
	if err != nil {
		return nil, false
	}
	return l, true
}

// Serve accepts connections on ln for the process lifetime, decoding
// one InvitePayload per connection and handing its URL to onInvite.
// A payload with an empty URL is read and dropped without a callback.
func Serve(ln net.Listener, onInvite func(url string)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var payload InvitePayload
			if err := json.NewDecoder(conn).Decode(&payload); err != nil {
				return
			}
			if payload.URL != "" {
				onInvite(payload.URL)
			}
		}()
	}
}

// SendToPrimary connects to an already-running primary instance and
// forwards url (which may be empty, for a plain bare secondary launch).
func SendToPrimary(url string) error {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", Port), 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return json.NewEncoder(conn).Encode(InvitePayload{URL: url})
}
