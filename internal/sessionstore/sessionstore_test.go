package sessionstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRememberAndResume(t *testing.T) {
	store := New("test-secret")

	token, err := store.Remember("client1", "123-456", "hash", true, "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	rec, err := store.Resume(token)
	require.NoError(t, err)
	assert.Equal(t, "client1", rec.ClientID)
	assert.Equal(t, "123-456", rec.RoomID)
	assert.Equal(t, "hash", rec.FileHash)
	assert.True(t, rec.WasHost)
	assert.Equal(t, "Alice", rec.DisplayName)
}

func TestResume_SingleUse(t *testing.T) {
	store := New("test-secret")
	token, err := store.Remember("client1", "123-456", "hash", false, "")
	require.NoError(t, err)

	_, err = store.Resume(token)
	require.NoError(t, err)

	_, err = store.Resume(token)
	assert.ErrorIs(t, err, ErrTokenInvalid, "a redeemed token must not be usable twice")
}

func TestRemember_RotationInvalidatesPrior(t *testing.T) {
	store := New("test-secret")
	first, err := store.Remember("client1", "123-456", "hash", false, "")
	require.NoError(t, err)

	_, err = store.Remember("client1", "123-456", "hash", false, "")
	require.NoError(t, err)

	_, err = store.Resume(first)
	assert.ErrorIs(t, err, ErrTokenInvalid, "minting a fresh token must invalidate the previous one")
}

func TestResume_WrongSecret(t *testing.T) {
	store1 := New("secret-a")
	store2 := New("secret-b")

	token, err := store1.Remember("client1", "123-456", "hash", false, "")
	require.NoError(t, err)

	_, err = store2.Resume(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestClear(t *testing.T) {
	store := New("test-secret")
	token, err := store.Remember("client1", "123-456", "hash", false, "")
	require.NoError(t, err)

	store.Clear("client1")

	_, err = store.Resume(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestClearAllForRoom(t *testing.T) {
	store := New("test-secret")
	t1, err := store.Remember("client1", "123-456", "hash", false, "")
	require.NoError(t, err)
	t2, err := store.Remember("client2", "123-456", "hash", false, "")
	require.NoError(t, err)

	store.ClearAllForRoom([]string{"client1", "client2"})

	_, err = store.Resume(t1)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = store.Resume(t2)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResume_Malformed(t *testing.T) {
	store := New("test-secret")
	_, err := store.Resume("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
