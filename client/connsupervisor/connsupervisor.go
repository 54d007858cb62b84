// Package connsupervisor implements the Connection Supervisor (C5): it
// owns the retry loop that gets a Sync Client connected to one of a
// prioritized list of candidate endpoints, surviving transient outages
// without the caller ever seeing a raw dial error.
package connsupervisor

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Endpoint is one candidate the supervisor may dial, in priority order.
type Endpoint struct {
	Label      string // shown in status updates, e.g. "local" or "remote"
	WSURL      string // ws:// or wss:// URL to dial
	HealthzURL string // http(s):// URL probed before a cold-start dial; empty skips the probe
}

// StatusFunc receives human-readable progress updates as the supervisor
// works through its endpoint list.
type StatusFunc func(status string)

// DialFunc performs the actual websocket dial, returning an error on
// failure. Abstracted so tests can substitute a fake without opening a
// real socket.
type DialFunc func(ctx context.Context, wsURL string) error

// Supervisor drives the connect retry loop described in the connection
// supervisor design: warm-up probe, dial, backoff, manual retry.
type Supervisor struct {
	endpoints  []Endpoint
	dial       DialFunc
	onStatus   StatusFunc
	httpClient *http.Client

	manualRetry chan struct{}
}

// New builds a Supervisor over endpoints, dialing with dial and
// reporting progress via onStatus (which may be nil).
func New(endpoints []Endpoint, dial DialFunc, onStatus StatusFunc) *Supervisor {
	if onStatus == nil {
		onStatus = func(string) {}
	}
	return &Supervisor{
		endpoints:   endpoints,
		dial:        dial,
		onStatus:    onStatus,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		manualRetry: make(chan struct{}, 1),
	}
}

// RetryNow signals a waiting backoff sleep to wake immediately and
// restart from the top of the endpoint list. Non-blocking: a retry
// request queued ahead of one already pending is coalesced.
func (s *Supervisor) RetryNow() {
	select {
	case s.manualRetry <- struct{}{}:
	default:
	}
}

// Run attempts connection until one endpoint succeeds or ctx is
// cancelled, returning the label of the endpoint that connected, or the
// ctx error.
func (s *Supervisor) Run(ctx context.Context) (label string, err error) {
	attempt := 0
	idx := 0

	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if len(s.endpoints) == 0 {
			return "", fmt.Errorf("connsupervisor: no endpoints configured")
		}

		ep := s.endpoints[idx%len(s.endpoints)]
		attempt++
		s.onStatus(fmt.Sprintf("Connecting to %s (attempt %d)", ep.Label, attempt))

		if ep.HealthzURL != "" {
			if err := s.warmUp(ctx, ep); err != nil {
				s.onStatus(fmt.Sprintf("%s warm-up failed: %v", ep.Label, err))
			}
		}

		if err := s.dial(ctx, ep.WSURL); err != nil {
			s.onStatus(fmt.Sprintf("%s dial failed: %v", ep.Label, err))
			manual, waitErr := s.backoff(ctx, attempt)
			if waitErr != nil {
				return "", waitErr
			}
			if manual {
				attempt = 0
				idx = 0
				continue
			}
			idx++
			continue
		}

		s.onStatus(fmt.Sprintf("Connected to %s", ep.Label))
		return ep.Label, nil
	}
}

// warmUp issues a cold-start probe GET with a 10s timeout, surfacing
// only its error (the Sync Client dial is the real connectivity check).
func (s *Supervisor) warmUp(ctx context.Context, ep Endpoint) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.HealthzURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unhealthy status %d", resp.StatusCode)
	}
	return nil
}

// backoff sleeps 5*min(attempt,6) seconds, or returns early if ctx is
// cancelled or a manual retry arrives — in which case manual is true and
// the caller restarts from the top of the endpoint list with attempt
// reset.
func (s *Supervisor) backoff(ctx context.Context, attempt int) (manual bool, err error) {
	n := attempt
	if n > 6 {
		n = 6
	}
	wait := time.Duration(5*n) * time.Second

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, nil
	case <-s.manualRetry:
		return true, nil
	}
}
