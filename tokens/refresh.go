package tokens

import (
	"context"
	"time"

	"github.com/MrEthical07/goAuthClient/internal/logging"
	"github.com/MrEthical07/goAuthClient/internal/metrics"
	"github.com/MrEthical07/goAuthClient/jwt"
)

// RefreshTokens renews the stored pair through renew, coalescing concurrent callers into
// a single renewal. It returns:
//
//   - (pair, nil) when the renewal succeeded and was applied, or was discarded as stale
//     while a newer pair is stored;
//   - (nil, nil) when there is no session, the refresh token is expired, or a stale
//     renewal finished after logout;
//   - (nil, err) when renew failed. Tokens are cleared unless they were replaced while
//     the renewal was in flight.
//
// Cancelling ctx releases the caller but never aborts the shared renewal; other callers
// still observe its result.
func (m *Manager) RefreshTokens(ctx context.Context, renew RenewFunc) (*Pair, error) {
	if renew == nil {
		return nil, ErrNoRenewFunc
	}

	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(refreshFlight, func() (any, error) {
		return m.runRefresh(detached, renew)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.metrics.Inc(metrics.RefreshCoalesced)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		pair, _ := res.Val.(*Pair)
		if pair == nil {
			return nil, nil
		}
		out := *pair
		return &out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitRefresh blocks until the renewal running at call time, if any, has finished and
// applied its result. It never starts a renewal.
func (m *Manager) WaitRefresh(ctx context.Context) error {
	m.mu.Lock()
	done := m.inflight
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginRefresh records the running renewal and returns the generation it starts from.
func (m *Manager) beginRefresh() (uint64, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	done := make(chan struct{})
	m.inflight = done
	return m.generation, func() {
		m.mu.Lock()
		m.inflight = nil
		m.mu.Unlock()
		close(done)
	}
}

func (m *Manager) runRefresh(ctx context.Context, renew RenewFunc) (*Pair, error) {
	gen, finish := m.beginRefresh()
	defer finish()

	refresh, ok := m.RefreshToken(ctx)
	if !ok {
		m.metrics.Inc(metrics.RefreshNoSession)
		return nil, nil
	}
	if jwt.ExpiresWithin(refresh, m.clock.Now(), 0) {
		m.metrics.Inc(metrics.RefreshExpiredSession)
		m.clearIfGeneration(ctx, gen)
		return nil, nil
	}

	start := time.Now()
	next, err := renew(ctx, refresh)
	m.metrics.Observe(metrics.RefreshLatency, time.Since(start))
	if err == nil && !next.Complete() {
		err = ErrIncompletePair
	}
	if err != nil {
		m.metrics.Inc(metrics.RefreshFailure)
		m.clearIfGeneration(ctx, gen)
		return nil, err
	}

	if !m.setIfGeneration(ctx, gen, next) {
		m.metrics.Inc(metrics.RefreshStaleDiscarded)
		if current, ok := m.Tokens(ctx); ok {
			return &current, nil
		}
		return nil, nil
	}

	m.metrics.Inc(metrics.RefreshSuccess)
	if m.onRefresh != nil {
		m.onRefresh(next)
	}
	return &next, nil
}

// setIfGeneration stores pair only if no write happened since gen was observed. Store
// failures are logged; the renewal result is still handed to callers.
func (m *Manager) setIfGeneration(ctx context.Context, gen uint64, pair Pair) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		return false
	}
	m.generation++
	if err := m.writeLocked(ctx, pair); err != nil {
		logging.LogError(ctx, m.logger, "goAuthClient: renewed tokens not persisted", err)
	}
	return true
}

func (m *Manager) clearIfGeneration(ctx context.Context, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		return
	}
	m.generation++
	if err := m.clearLocked(ctx); err != nil {
		logging.LogError(ctx, m.logger, "goAuthClient: credential clear failed", err)
	}
}
