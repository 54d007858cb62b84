package ipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryBecomePrimary_SecondAttemptFails(t *testing.T) {
	ln, ok := TryBecomePrimary()
	require.True(t, ok)
	defer ln.Close()

	_, ok2 := TryBecomePrimary()
	assert.False(t, ok2, "a second instance must not also become primary")
}

func TestServeAndSendToPrimary(t *testing.T) {
	ln, ok := TryBecomePrimary()
	require.True(t, ok)
	defer ln.Close()

	received := make(chan string, 1)
	go Serve(ln, func(url string) { received <- url })

	require.NoError(t, SendToPrimary("hang://join?room=123-456"))

	select {
	case url := <-received:
		assert.Equal(t, "hang://join?room=123-456", url)
	case <-time.After(2 * time.Second):
		t.Fatal("primary never received the forwarded invite")
	}
}

func TestSendToPrimary_EmptyURLDoesNotInvokeCallback(t *testing.T) {
	ln, ok := TryBecomePrimary()
	require.True(t, ok)
	defer ln.Close()

	received := make(chan string, 1)
	go Serve(ln, func(url string) { received <- url })

	require.NoError(t, SendToPrimary(""))

	select {
	case <-received:
		t.Fatal("an empty url must not invoke the invite callback")
	case <-time.After(200 * time.Millisecond):
	}
}
