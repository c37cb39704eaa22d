package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// DefaultConnectingTimeout is how long a subscription may stay connecting
// before the stall signal fires.
const DefaultConnectingTimeout = 15 * time.Second

// Status is the connection state of a subscription.
type Status int32

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Options configure a Subscription. All fields are optional.
type Options struct {
	Clock             clock.Clock
	ConnectingTimeout time.Duration
	// OnStatus observes every status transition.
	OnStatus func(Status)
	// OnStall fires once per connection attempt that is still connecting
	// after ConnectingTimeout. It is a signal only; nothing is retried.
	OnStall func()
	Logger  *zap.Logger
}

// Subscription is one change-stream or presence listener with a tri-state
// status. Retries happen only through Retry.
type Subscription struct {
	listen func(ctx context.Context) (func(), error)
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	status  Status
	changed chan struct{}
	attempt int
	cancel  func()
	stall   clock.Timer
	err     error

	dmu    sync.Mutex
	closed atomic.Bool
	once   sync.Once
}

// Subscribe starts listening for spec on b. The connection is established
// in the background; the subscription starts in StatusConnecting.
func Subscribe(ctx context.Context, b Broker, spec Spec, handler Handler, opts Options) *Subscription {
	s := newSubscription(opts, zap.String("table", spec.Table))
	s.listen = func(ctx context.Context) (func(), error) {
		return b.Listen(ctx, spec, func(c Change) {
			s.deliver(func() { handler(c) })
		})
	}
	s.connect(ctx)
	return s
}

// WatchPresence starts watching ch with the same status, stall and retry
// contract as Subscribe. The initial sync event may arrive before the
// status turns connected.
func WatchPresence(ctx context.Context, ch PresenceChannel, fn func(PresenceEvent), opts Options) *Subscription {
	s := newSubscription(opts, zap.String("channel", presenceChannel))
	s.listen = func(ctx context.Context) (func(), error) {
		return ch.Watch(ctx, func(ev PresenceEvent) {
			s.deliver(func() { fn(ev) })
		})
	}
	s.connect(ctx)
	return s
}

func newSubscription(opts Options, field zap.Field) *Subscription {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.ConnectingTimeout <= 0 {
		opts.ConnectingTimeout = DefaultConnectingTimeout
	}
	return &Subscription{
		opts:    opts,
		logger:  logging.OrNop(opts.Logger).With(field),
		changed: make(chan struct{}),
	}
}

// Status reports the current state.
func (s *Subscription) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Await blocks until the subscription is no longer connecting and returns
// the status it settled on. It returns ctx's error if ctx ends first.
func (s *Subscription) Await(ctx context.Context) (Status, error) {
	for {
		s.mu.Lock()
		st, changed := s.status, s.changed
		s.mu.Unlock()
		if st != StatusConnecting {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-changed:
		}
	}
}

// Err returns the error of the last failed attempt.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Retry reconnects a failed subscription. It reports false when the
// subscription is not failed or has been unsubscribed.
func (s *Subscription) Retry(ctx context.Context) bool {
	if s.closed.Load() {
		return false
	}
	s.mu.Lock()
	failed := s.status == StatusFailed
	s.mu.Unlock()
	if !failed {
		return false
	}
	s.connect(ctx)
	return true
}

// Unsubscribe detaches the listener. It is safe to call more than once; after
// the first call returns the handler is never invoked again. It must not be
// called from inside the handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.dmu.Lock()
		s.dmu.Unlock()

		s.mu.Lock()
		cancel := s.cancel
		s.cancel = nil
		if s.stall != nil {
			s.stall.Stop()
		}
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
	})
}

func (s *Subscription) connect(ctx context.Context) {
	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.err = nil
	s.stall = s.opts.Clock.AfterFunc(s.opts.ConnectingTimeout, func() { s.stalled(attempt) })
	s.mu.Unlock()
	s.setStatus(StatusConnecting)

	go func() {
		cancel, err := s.listen(ctx)
		s.connected(attempt, cancel, err)
	}()
}

func (s *Subscription) connected(attempt int, cancel func(), err error) {
	s.mu.Lock()
	if s.closed.Load() || attempt != s.attempt {
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	if s.stall != nil {
		s.stall.Stop()
	}
	next := StatusConnected
	if err != nil {
		next = StatusFailed
		s.err = err
	} else {
		s.cancel = cancel
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("subscription failed", zap.Error(err))
	}
	s.setStatus(next)
}

func (s *Subscription) stalled(attempt int) {
	s.mu.Lock()
	still := attempt == s.attempt && s.status == StatusConnecting
	s.mu.Unlock()
	if !still || s.closed.Load() {
		return
	}
	s.logger.Warn("subscription still connecting", zap.Duration("after", s.opts.ConnectingTimeout))
	if s.opts.OnStall != nil {
		s.opts.OnStall()
	}
}

func (s *Subscription) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
	if s.opts.OnStatus != nil && !s.closed.Load() {
		s.opts.OnStatus(st)
	}
}

func (s *Subscription) deliver(fn func()) {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if s.closed.Load() {
		return
	}
	fn()
}
