// Package governor bounds and deduplicates remote calls.
//
// Every remote call is made through Guard under a key built from the
// operation name and its arguments. Callers arriving while a call with the
// same key is in flight, or within the linger interval after it settled,
// share its outcome instead of issuing another call.
package governor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/pkg/config"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
	"github.com/thoughtforge/thoughtsync/pkg/telemetry"
)

// DefaultLinger is how long a settled entry keeps absorbing callers.
const DefaultLinger = time.Second

// Policy holds the deadline per operation class.
type Policy struct {
	Read  time.Duration
	Write time.Duration
	Stats time.Duration
}

// PolicyFromConfig maps configuration onto a Policy.
func PolicyFromConfig(cfg config.GovernorConfig) Policy {
	return Policy{Read: cfg.ReadTimeout, Write: cfg.WriteTimeout, Stats: cfg.StatsTimeout}
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{Read: 45 * time.Second, Write: 30 * time.Second, Stats: 30 * time.Second}
}

// Governor is the shared pending-request cache. Create one per process (or
// per test) and pass it to whoever issues remote calls.
type Governor struct {
	clock  clock.Clock
	linger time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry

	calls atomic.Int64
	hits  atomic.Int64
	seq   atomic.Int64
}

type entry struct {
	key       string
	done      chan struct{}
	val       any
	err       error
	settled   bool
	expiresAt time.Time
	deadline  clock.Timer
	evict     clock.Timer
	cancel    context.CancelFunc
}

// New creates a Governor. A nil clock uses wall time; a negative linger is
// treated as zero.
func New(c clock.Clock, linger time.Duration, logger *zap.Logger) *Governor {
	if c == nil {
		c = clock.Real{}
	}
	if linger < 0 {
		linger = 0
	}
	return &Governor{
		clock:   c,
		linger:  linger,
		logger:  logging.OrNop(logger).With(zap.String("component", "governor")),
		entries: make(map[string]*entry),
	}
}

// Key joins an operation name and its arguments into a cache key. Any
// user-scoped operation must include the user id among args.
func Key(op string, args ...any) string {
	var b strings.Builder
	b.WriteString(op)
	for _, a := range args {
		b.WriteByte(':')
		fmt.Fprint(&b, a)
	}
	return b.String()
}

// Guard runs op under key with the given deadline, or joins the live entry
// for key. On deadline the shared outcome is apperr.ErrTimeout and op's
// context is cancelled; whatever op returns afterwards is dropped.
//
// A caller whose own ctx ends stops waiting with ctx.Err() without
// affecting the shared call.
func Guard[T any](ctx context.Context, g *Governor, key string, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	e, leader := g.join(key)
	if leader {
		g.start(ctx, e, timeout, func(c context.Context) (any, error) { return op(c) })
	} else {
		g.hits.Add(1)
		telemetry.Metrics().DedupHits.Add(ctx, 1)
		logging.FromContext(ctx, g.logger).Debug("joined pending request", zap.String("key", key))
	}

	var zero T
	select {
	case <-e.done:
		if e.err != nil {
			return zero, e.err
		}
		v, _ := e.val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Bounded runs op under the deadline without sharing it with any other
// caller. Use it for writes that must happen once per call, like counter
// increments.
func Bounded[T any](ctx context.Context, g *Governor, op string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return Guard(ctx, g, Key("~"+op, g.seq.Add(1)), timeout, fn)
}

// Invalidate drops every entry. Calls already in flight still deliver to
// the callers waiting on them, but nobody new can join them.
func (g *Governor) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, e := range g.entries {
		if e.evict != nil {
			e.evict.Stop()
		}
		delete(g.entries, key)
	}
}

// Len reports the number of live entries.
func (g *Governor) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Calls reports how many underlying operations were started.
func (g *Governor) Calls() int64 { return g.calls.Load() }

// Hits reports how many callers joined an existing entry.
func (g *Governor) Hits() int64 { return g.hits.Load() }

func (g *Governor) join(key string) (*entry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[key]; ok {
		if !e.settled || g.clock.Now().Before(e.expiresAt) {
			return e, false
		}
		delete(g.entries, key)
	}
	e := &entry{key: key, done: make(chan struct{})}
	g.entries[key] = e
	return e, true
}

func (g *Governor) start(ctx context.Context, e *entry, timeout time.Duration, op func(context.Context) (any, error)) {
	g.calls.Add(1)

	// the call outlives the caller that happened to start it
	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	g.mu.Lock()
	e.cancel = cancel
	e.deadline = g.clock.AfterFunc(timeout, func() {
		if g.settle(e, nil, apperr.ErrTimeout) {
			telemetry.Metrics().Timeouts.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("op", opName(e.key))))
			g.logger.Warn("remote call timed out",
				zap.String("key", e.key), zap.Duration("timeout", timeout))
		}
	})
	g.mu.Unlock()

	go func() {
		v, err := op(opCtx)
		g.settle(e, v, err)
	}()
}

// settle records the first outcome for e and schedules its eviction.
func (g *Governor) settle(e *entry, v any, err error) bool {
	g.mu.Lock()
	if e.settled {
		g.mu.Unlock()
		return false
	}
	e.settled = true
	e.val, e.err = v, err
	e.expiresAt = g.clock.Now().Add(g.linger)
	if e.deadline != nil {
		e.deadline.Stop()
	}
	cancel := e.cancel
	if g.entries[e.key] == e {
		e.evict = g.clock.AfterFunc(g.linger, func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.entries[e.key] == e {
				delete(g.entries, e.key)
			}
		})
	}
	close(e.done)
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func opName(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
