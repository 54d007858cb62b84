package ratelimit

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hangsync/hang/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		RateLimitConnectIP:  "2-M",
		RateLimitCreateRoom: "1-M",
		RateLimitJoinRoom:   "1-M",
	}
}

func TestNew_UsesInMemoryStoreWhenRedisClientNil(t *testing.T) {
	rl, err := New(testConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, rl.store)
}

func TestNew_RejectsMalformedRate(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitConnectIP = "not-a-rate"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestCheckCreateRoom_AllowsThenBlocksOverLimit(t *testing.T) {
	rl, err := New(testConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, rl.CheckCreateRoom(ctx, "client1"), "first CreateRoom within the limit must be allowed")
	assert.False(t, rl.CheckCreateRoom(ctx, "client1"), "second CreateRoom within the same window must be blocked")
}

func TestCheckJoinRoom_IsolatedPerClient(t *testing.T) {
	rl, err := New(testConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, rl.CheckJoinRoom(ctx, "client1"))
	assert.True(t, rl.CheckJoinRoom(ctx, "client2"), "a second client's own window must not be exhausted by the first client's request")
}

func TestCheckConnect_WritesRetryAfterOnBlock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, err := New(testConfig(), nil)
	require.NoError(t, err)

	newCtx := func() *gin.Context {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/ws", nil)
		c.Request.RemoteAddr = "203.0.113.1:1234"
		return c
	}

	c1 := newCtx()
	assert.True(t, rl.CheckConnect(c1))

	c2 := newCtx()
	assert.True(t, rl.CheckConnect(c2), "second attempt within the 2-per-minute limit must still be allowed")

	c3 := newCtx()
	assert.False(t, rl.CheckConnect(c3), "third attempt must be blocked")
	assert.NotEmpty(t, c3.Writer.Header().Get("Retry-After"))
}
