package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncDecConnection(t *testing.T) {
	before := testutil.ToFloat64(ActiveWebSocketConnections)

	IncConnection()
	if got := testutil.ToFloat64(ActiveWebSocketConnections); got != before+1 {
		t.Errorf("expected ActiveWebSocketConnections to increase by 1, got %v (was %v)", got, before)
	}

	DecConnection()
	if got := testutil.ToFloat64(ActiveWebSocketConnections); got != before {
		t.Errorf("expected ActiveWebSocketConnections to return to %v, got %v", before, got)
	}
}

func TestWebsocketEvents_LabeledByTypeAndStatus(t *testing.T) {
	before := testutil.ToFloat64(WebsocketEvents.WithLabelValues("RoomJoined", "delivered"))

	WebsocketEvents.WithLabelValues("RoomJoined", "delivered").Inc()

	got := testutil.ToFloat64(WebsocketEvents.WithLabelValues("RoomJoined", "delivered"))
	if got != before+1 {
		t.Errorf("expected RoomJoined/delivered counter to increase by 1, got %v (was %v)", got, before)
	}
}

func TestSyncBroadcasts_LabeledByCommandAndOutcome(t *testing.T) {
	before := testutil.ToFloat64(SyncBroadcasts.WithLabelValues("Play", "delivered"))

	SyncBroadcasts.WithLabelValues("Play", "delivered").Inc()

	got := testutil.ToFloat64(SyncBroadcasts.WithLabelValues("Play", "delivered"))
	if got != before+1 {
		t.Errorf("expected Play/delivered counter to increase by 1, got %v (was %v)", got, before)
	}
}

func TestCircuitBreakerState_Settable(t *testing.T) {
	CircuitBreakerState.WithLabelValues("redis").Set(1)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("redis")); got != 1 {
		t.Errorf("expected CircuitBreakerState(redis) to be 1, got %v", got)
	}
	CircuitBreakerState.WithLabelValues("redis").Set(0)
}

func TestRoomParticipants_LabeledByRoomCode(t *testing.T) {
	RoomParticipants.WithLabelValues("123-456").Set(2)
	if got := testutil.ToFloat64(RoomParticipants.WithLabelValues("123-456")); got != 2 {
		t.Errorf("expected RoomParticipants(123-456) to be 2, got %v", got)
	}
	RoomParticipants.DeleteLabelValues("123-456")
}

func TestRedisOperationsTotal_LabeledByOperationAndStatus(t *testing.T) {
	before := testutil.ToFloat64(RedisOperationsTotal.WithLabelValues("publish", "ok"))

	RedisOperationsTotal.WithLabelValues("publish", "ok").Inc()

	got := testutil.ToFloat64(RedisOperationsTotal.WithLabelValues("publish", "ok"))
	if got != before+1 {
		t.Errorf("expected publish/ok counter to increase by 1, got %v (was %v)", got, before)
	}
}

func TestMessageProcessingDuration_ObservesWithoutPanic(t *testing.T) {
	MessageProcessingDuration.WithLabelValues("SyncCommand").Observe(0.01)
}

func TestRedisOperationDuration_ObservesWithoutPanic(t *testing.T) {
	RedisOperationDuration.WithLabelValues("publish").Observe(0.005)
}

func TestRateLimitCounters_LabeledByEndpoint(t *testing.T) {
	before := testutil.ToFloat64(RateLimitRequests.WithLabelValues("connect"))
	RateLimitRequests.WithLabelValues("connect").Inc()
	if got := testutil.ToFloat64(RateLimitRequests.WithLabelValues("connect")); got != before+1 {
		t.Errorf("expected RateLimitRequests(connect) to increase by 1, got %v (was %v)", got, before)
	}

	beforeExceeded := testutil.ToFloat64(RateLimitExceeded.WithLabelValues("connect", "over_limit"))
	RateLimitExceeded.WithLabelValues("connect", "over_limit").Inc()
	if got := testutil.ToFloat64(RateLimitExceeded.WithLabelValues("connect", "over_limit")); got != beforeExceeded+1 {
		t.Errorf("expected RateLimitExceeded(connect, over_limit) to increase by 1, got %v (was %v)", got, beforeExceeded)
	}
}
