// Package ratelimit gates template generation for signed-out users with a
// fixed-window counter persisted in the local store, so reloading does not
// reset the quota.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/internal/localstore"
	"github.com/thoughtforge/thoughtsync/pkg/config"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
	"github.com/thoughtforge/thoughtsync/pkg/telemetry"
)

// Result is the outcome of one check. ResetAt is set when Allowed is false.
type Result struct {
	Allowed bool      `json:"allowed"`
	ResetAt time.Time `json:"resetTime,omitempty"`
}

type window struct {
	Count int       `json:"count"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Limiter is a fixed-window counter.
type Limiter struct {
	store  *localstore.Store
	clock  clock.Clock
	quota  int
	window time.Duration
	logger *zap.Logger

	mu sync.Mutex
}

// New returns a limiter allowing quota calls per window.
func New(store *localstore.Store, c clock.Clock, cfg config.RateLimitConfig, logger *zap.Logger) *Limiter {
	if c == nil {
		c = clock.Real{}
	}
	return &Limiter{
		store:  store,
		clock:  c,
		quota:  cfg.Quota,
		window: cfg.Window,
		logger: logging.OrNop(logger).With(zap.String("component", "ratelimit")),
	}
}

// Check counts one call. A missing or expired window starts a fresh one.
// Rejected calls do not consume quota.
func (l *Limiter) Check(ctx context.Context) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UTC()
	var w window
	found, err := l.store.LoadJSON(localstore.KeyRateLimit, &w)
	if err != nil {
		return Result{}, fmt.Errorf("load rate limit window: %w", err)
	}

	if !found || !now.Before(w.End) {
		w = window{Count: 1, Start: now, End: now.Add(l.window)}
		if err := l.store.SaveJSON(localstore.KeyRateLimit, w); err != nil {
			return Result{}, fmt.Errorf("save rate limit window: %w", err)
		}
		return Result{Allowed: true}, nil
	}

	if w.Count >= l.quota {
		telemetry.Metrics().RateLimited.Add(ctx, 1)
		l.logger.Info("template generation rate limited",
			zap.Int("quota", l.quota),
			zap.Time("reset_at", w.End))
		return Result{Allowed: false, ResetAt: w.End}, nil
	}

	w.Count++
	if err := l.store.SaveJSON(localstore.KeyRateLimit, w); err != nil {
		return Result{}, fmt.Errorf("save rate limit window: %w", err)
	}
	return Result{Allowed: true}, nil
}

// Remaining reports how many calls are left in the current window without
// counting one.
func (l *Limiter) Remaining() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var w window
	found, err := l.store.LoadJSON(localstore.KeyRateLimit, &w)
	if err != nil {
		return 0, err
	}
	if !found || !l.clock.Now().Before(w.End) {
		return l.quota, nil
	}
	if w.Count >= l.quota {
		return 0, nil
	}
	return l.quota - w.Count, nil
}
