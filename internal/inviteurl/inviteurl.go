// Package inviteurl implements the Invite Link Codec (C9): a bidirectional
// mapping between a custom-scheme URL and (room, passcode, file hint).
package inviteurl

import (
	"errors"
	"net/url"
	"strings"
)

// Scheme is the custom URL scheme used for invite links.
const Scheme = "hang"

// ErrRoomRequired is returned by Decode when the room parameter is
// missing or empty after trimming.
var ErrRoomRequired = errors.New("invite link missing room parameter")

// Invite is the decoded content of an invite link.
type Invite struct {
	Room string
	Code string
	File string
}

// Encode produces hang://join?room=<pct>&code=<pct>&file=<pct>, omitting
// code and file when empty.
func Encode(inv Invite) string {
	q := url.Values{}
	q.Set("room", inv.Room)
	if inv.Code != "" {
		q.Set("code", inv.Code)
	}
	if inv.File != "" {
		q.Set("file", inv.File)
	}
	u := url.URL{
		Scheme:   Scheme,
		Host:     "join",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Decode accepts any of: a hang://join?... URL, an http(s)://...?... URL,
// or a bare query string. Unknown parameters are ignored; room is
// required and non-empty after trimming.
func Decode(raw string) (Invite, error) {
	raw = strings.TrimSpace(raw)

	var rawQuery string
	switch {
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Invite{}, err
		}
		rawQuery = u.RawQuery
	case strings.HasPrefix(raw, "?"):
		rawQuery = raw[1:]
	default:
		rawQuery = raw
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Invite{}, err
	}

	room := strings.TrimSpace(values.Get("room"))
	if room == "" {
		return Invite{}, ErrRoomRequired
	}

	return Invite{
		Room: room,
		Code: strings.TrimSpace(values.Get("code")),
		File: strings.TrimSpace(values.Get("file")),
	}, nil
}
