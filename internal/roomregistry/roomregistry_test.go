package roomregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoom_DefaultsAndPasscode(t *testing.T) {
	reg := New()

	code, enabled, capacity, name, err := reg.CreateRoom("host1", "abc123", "s3cret", "", 0)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{3}-\d{3}$`, code)
	assert.True(t, enabled)
	assert.Equal(t, DefaultCapacity, capacity)
	assert.Equal(t, "Guest", name)

	snap, ok := reg.RoomSnapshot(code)
	require.True(t, ok)
	assert.Len(t, snap.Roster, 1)
	assert.Equal(t, "host1", snap.Roster[0].ClientID)
}

func TestJoinRoom_Precedence(t *testing.T) {
	reg := New()
	code, _, _, _, err := reg.CreateRoom("host1", "filehash", "pw", "Host", 2)
	require.NoError(t, err)

	_, _, _, _, _, err = reg.JoinRoom("other", "000-000", "filehash", "pw", "")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, _, _, _, _, err = reg.JoinRoom("other", code, "wronghash", "pw", "")
	var mismatch *FileHashMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "filehash", mismatch.Expected)

	_, _, _, _, _, err = reg.JoinRoom("other", code, "filehash", "", "")
	assert.ErrorIs(t, err, ErrPasscodeRequired)

	_, _, _, _, _, err = reg.JoinRoom("other", code, "filehash", "wrong", "")
	assert.ErrorIs(t, err, ErrPasscodeInvalid)

	isHost, hash, capacity, name, passcodeEnabled, err := reg.JoinRoom("other", code, "filehash", "pw", "Other")
	require.NoError(t, err)
	assert.False(t, isHost)
	assert.Equal(t, "filehash", hash)
	assert.Equal(t, 2, capacity)
	assert.Equal(t, "Other", name)
	assert.True(t, passcodeEnabled, "JoinRoom must report the room's real passcode state, not a hardcoded value")

	_, _, _, _, _, err = reg.JoinRoom("third", code, "filehash", "pw", "")
	var full *RoomFullError
	require.ErrorAs(t, err, &full)
	assert.Equal(t, 2, full.Capacity)
}

func TestJoinRoom_RejoinIsIdempotent(t *testing.T) {
	reg := New()
	code, _, _, _, err := reg.CreateRoom("host1", "hash", "", "Host", 2)
	require.NoError(t, err)

	_, _, _, _, _, err = reg.JoinRoom("member", code, "hash", "", "Member")
	require.NoError(t, err)

	_, _, _, name, _, err := reg.JoinRoom("member", code, "hash", "", "MemberRenamed")
	require.NoError(t, err)
	assert.Equal(t, "MemberRenamed", name)

	snap, _ := reg.RoomSnapshot(code)
	assert.Len(t, snap.Roster, 2, "rejoin must not consume an extra seat")
}

func TestLeaveRoom_DestroysWhenEmpty(t *testing.T) {
	reg := New()
	code, _, _, _, err := reg.CreateRoom("host1", "hash", "", "", 0)
	require.NoError(t, err)

	destroyed := reg.LeaveRoom("host1", code)
	assert.Equal(t, code, destroyed)

	_, ok := reg.RoomSnapshot(code)
	assert.False(t, ok)
}

func TestReassignHost(t *testing.T) {
	reg := New()
	code, _, _, _, err := reg.CreateRoom("host1", "hash", "", "", 0)
	require.NoError(t, err)

	require.NoError(t, reg.ReassignHost(code, "host2", "NewHost"))
	hostID, ok := reg.HostID(code)
	require.True(t, ok)
	assert.Equal(t, "host2", hostID)
}

func TestNormalizeCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NormalizeCapacity(0))
	assert.Equal(t, DefaultCapacity, NormalizeCapacity(-5))
	assert.Equal(t, 2, NormalizeCapacity(1))
	assert.Equal(t, 32, NormalizeCapacity(100))
	assert.Equal(t, 20, NormalizeCapacity(20))
}

func TestHashPasscode_BoundToCode(t *testing.T) {
	h1 := HashPasscode("123-456", "secret")
	h2 := HashPasscode("999-999", "secret")
	assert.NotEqual(t, h1, h2, "the same passcode under a different room code must hash differently")
}
