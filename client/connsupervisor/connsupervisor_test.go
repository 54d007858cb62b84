package connsupervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ConnectsFirstEndpoint(t *testing.T) {
	s := New(
		[]Endpoint{{Label: "primary", WSURL: "ws://primary"}},
		func(ctx context.Context, wsURL string) error { return nil },
		nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	label, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "primary", label)
}

func TestRun_NoEndpointsConfiguredIsError(t *testing.T) {
	s := New(nil, func(ctx context.Context, wsURL string) error { return nil }, nil)
	_, err := s.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_ContextCancelledDuringBackoffReturnsPromptly(t *testing.T) {
	s := New(
		[]Endpoint{{Label: "only", WSURL: "ws://only"}},
		func(ctx context.Context, wsURL string) error { return errors.New("dial refused") },
		nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Run(ctx)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 2*time.Second, "backoff must not block past context cancellation")
}

func TestRun_ManualRetrySkipsBackoffWait(t *testing.T) {
	var dialCalls int32
	s := New(
		[]Endpoint{{Label: "only", WSURL: "ws://only"}},
		func(ctx context.Context, wsURL string) error {
			n := atomic.AddInt32(&dialCalls, 1)
			if n == 1 {
				return errors.New("first dial fails")
			}
			return nil
		},
		nil,
	)

	// Queue the manual retry before Run starts so the first backoff wait
	// observes it immediately instead of sleeping out the full interval.
	s.RetryNow()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	label, err := s.Run(ctx)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "only", label)
	assert.Less(t, elapsed, 2*time.Second, "a manual retry must short-circuit the timed backoff")
	assert.Equal(t, int32(2), atomic.LoadInt32(&dialCalls))
}

func TestBackoff_ManualRetryReportsManualTrue(t *testing.T) {
	s := New(nil, nil, nil)
	s.RetryNow()

	manual, err := s.backoff(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, manual)
}

func TestBackoff_ContextDoneReportsError(t *testing.T) {
	s := New(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	manual, err := s.backoff(ctx, 1)
	assert.Error(t, err)
	assert.False(t, manual)
}
