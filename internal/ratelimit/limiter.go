// Package ratelimit implements rate limiting for Hang's admission surfaces
// using Redis or local memory as the backing store.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hangsync/hang/internal/config"
	"github.com/hangsync/hang/internal/logging"
	"github.com/hangsync/hang/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// RateLimiter guards Hang's three admission surfaces: establishing a
// websocket connection, and issuing CreateRoom/JoinRoom over it.
type RateLimiter struct {
	connectIP  *limiter.Limiter
	createRoom *limiter.Limiter
	joinRoom   *limiter.Limiter
	store      limiter.Store
}

// New builds a RateLimiter from validated configuration. redisClient may be
// nil, in which case an in-memory store is used.
func New(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	connectRate, err := limiter.NewRateFromFormatted(cfg.RateLimitConnectIP)
	if err != nil {
		return nil, fmt.Errorf("invalid connect-IP rate: %w", err)
	}
	createRoomRate, err := limiter.NewRateFromFormatted(cfg.RateLimitCreateRoom)
	if err != nil {
		return nil, fmt.Errorf("invalid create-room rate: %w", err)
	}
	joinRoomRate, err := limiter.NewRateFromFormatted(cfg.RateLimitJoinRoom)
	if err != nil {
		return nil, fmt.Errorf("invalid join-room rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "hang:limiter:"})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "rate limiter using in-memory store")
	}

	return &RateLimiter{
		connectIP:  limiter.New(store, connectRate),
		createRoom: limiter.New(store, createRoomRate),
		joinRoom:   limiter.New(store, joinRoomRate),
		store:      store,
	}, nil
}

// CheckConnect enforces the per-IP websocket-connect limit before upgrade.
// Writes the 429 response itself and returns false when the caller should
// abort the upgrade.
func (rl *RateLimiter) CheckConnect(c *gin.Context) bool {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	lc, err := rl.connectIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed on connect check", zap.Error(err))
		return true // fail open
	}

	metrics.RateLimitRequests.WithLabelValues("ws_connect").Inc()
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_connect", "ip").Inc()
		c.Header("Retry-After", strconv.FormatInt(lc.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return false
	}
	return true
}

// CheckCreateRoom enforces the per-client CreateRoom admission limit. Unlike
// CheckConnect this never writes an HTTP response: the caller translates a
// false result into an Error{message} wire frame instead of closing the
// socket, per the taxonomy in the error handling design.
func (rl *RateLimiter) CheckCreateRoom(ctx context.Context, clientID string) bool {
	return rl.checkKeyed(ctx, rl.createRoom, clientID, "create_room")
}

// CheckJoinRoom enforces the per-client JoinRoom admission limit.
func (rl *RateLimiter) CheckJoinRoom(ctx context.Context, clientID string) bool {
	return rl.checkKeyed(ctx, rl.joinRoom, clientID, "join_room")
}

func (rl *RateLimiter) checkKeyed(ctx context.Context, l *limiter.Limiter, key, endpoint string) bool {
	lc, err := l.Get(ctx, key)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.String("endpoint", endpoint), zap.Error(err))
		return true // fail open
	}

	metrics.RateLimitRequests.WithLabelValues(endpoint).Inc()
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues(endpoint, "client").Inc()
		return false
	}
	return true
}
