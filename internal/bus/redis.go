// Package bus provides optional cross-instance fan-out over Redis pub/sub
// for horizontally scaled deployments of the Room Coordination Service.
// A single-instance deployment never touches this package: every method
// tolerates a nil *Service (or nil client) by becoming a no-op.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hangsync/hang/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// PubSubPayload is the envelope moved between instances for a single room
// event (RoomMemberUpdate or SyncBroadcast).
type PubSubPayload struct {
	RoomCode   string          `json:"room_code"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	SenderID   string          `json:"sender_id"`   // client id that caused the event (empty for roster updates)
	InstanceID string          `json:"instance_id"` // originating instance; Subscribe skips payloads carrying its own id
}

// Service wraps a Redis client behind a circuit breaker.
type Service struct {
	client     *redis.Client
	cb         *gobreaker.CircuitBreaker
	instanceID string
}

// Client returns the underlying Redis client, or nil in single-instance mode.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService dials Redis, verifies connectivity, and wraps it in a circuit
// breaker that trips after repeated failures.
func NewService(addr, password, instanceID string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("connected to Redis pub/sub", "addr", addr)
	return &Service{
		client:     rdb,
		cb:         gobreaker.NewCircuitBreaker(st),
		instanceID: instanceID,
	}, nil
}

func channelFor(roomCode string) string {
	return fmt.Sprintf("hang:room:%s", roomCode)
}

// Publish broadcasts a room event to every other instance subscribed to
// that room's channel.
func (s *Service) Publish(ctx context.Context, roomCode, event string, payload any, senderID string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload: %w", err)
		}
		msg := PubSubPayload{
			RoomCode:   roomCode,
			Event:      event,
			Payload:    innerBytes,
			SenderID:   senderID,
			InstanceID: s.instanceID,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pubsub envelope: %w", err)
		}
		start := time.Now()
		err = s.client.Publish(ctx, channelFor(roomCode), data).Err()
		metrics.RedisOperationDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())
		metrics.RedisOperationsTotal.WithLabelValues("publish", outcomeLabel(err)).Inc()
		return nil, err
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open, dropping publish", "room_code", roomCode)
			return nil
		}
		slog.Error("redis publish failed", "room_code", roomCode, "error", err)
		return err
	}
	return nil
}

// Subscribe starts a background goroutine relaying messages from other
// instances for one room's channel and returns immediately. The goroutine
// exits once the context is cancelled; callers typically tie this to the
// room's lifetime.
func (s *Service) Subscribe(ctx context.Context, roomCode string, wg *sync.WaitGroup, handler func(PubSubPayload)) {
	if s == nil || s.client == nil {
		return
	}

	channel := channelFor(roomCode)
	pubsub := s.client.Subscribe(ctx, channel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		slog.Info("subscribed to redis channel", "channel", channel)
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("redis subscription channel closed", "channel", channel)
					return
				}
				var payload PubSubPayload
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					slog.Error("failed to unmarshal redis message", "error", err)
					continue
				}
				if payload.InstanceID == s.instanceID {
					continue // our own publish, looped back
				}
				handler(payload)
			}
		}
	}()
}

// Ping checks Redis connectivity.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil && err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
	}
	return err
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
