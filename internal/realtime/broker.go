package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/cache"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// Handler receives changes that passed a subscription's Spec.
type Handler func(Change)

// Publisher announces changes.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Broker is a change-stream transport.
type Broker interface {
	Publisher
	// Listen delivers every change matching spec to deliver until the
	// returned cancel is called. It returns once the transport has
	// confirmed the listener.
	Listen(ctx context.Context, spec Spec, deliver Handler) (cancel func(), err error)
}

// Hub is an in-process Broker. Delivery is synchronous on the publisher's
// goroutine.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]hubSub
}

type hubSub struct {
	spec    Spec
	deliver Handler
}

var _ Broker = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]hubSub)}
}

func (h *Hub) Publish(ctx context.Context, c Change) error {
	h.mu.RLock()
	targets := make([]Handler, 0, len(h.subs))
	for _, s := range h.subs {
		if s.spec.Wants(c) {
			targets = append(targets, s.deliver)
		}
	}
	h.mu.RUnlock()

	for _, deliver := range targets {
		deliver(c)
	}
	return nil
}

func (h *Hub) Listen(ctx context.Context, spec Spec, deliver Handler) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = hubSub{spec: spec, deliver: deliver}
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}, nil
}

// Listeners reports the number of attached listeners.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// RedisBroker carries changes over Redis pub/sub, one channel per table.
type RedisBroker struct {
	cache  *cache.Cache
	logger *zap.Logger
}

var _ Broker = (*RedisBroker)(nil)

// NewRedisBroker returns a broker on c.
func NewRedisBroker(c *cache.Cache, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{cache: c, logger: logging.OrNop(logger).With(zap.String("component", "redis-broker"))}
}

func changeChannel(table string) string {
	return "changes:" + table
}

func (b *RedisBroker) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	return b.cache.Publish(ctx, changeChannel(c.Table), payload)
}

func (b *RedisBroker) Listen(ctx context.Context, spec Spec, deliver Handler) (func(), error) {
	ps, err := b.cache.Subscribe(ctx, changeChannel(spec.Table))
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				b.logger.Warn("dropping malformed change", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if spec.Wants(c) {
				deliver(c)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = ps.Close()
			<-done
		})
	}, nil
}
