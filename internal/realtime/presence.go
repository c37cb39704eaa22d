package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/cache"
	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// Presence defaults.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultPresenceTTL       = 90 * time.Second
)

// Record is one user's presence.
type Record struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Page        string    `json:"page"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// PresenceKind is a presence event kind.
type PresenceKind string

const (
	PresenceSync  PresenceKind = "sync"
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"
)

// PresenceEvent is a sync (authoritative full set) or a join/leave delta.
type PresenceEvent struct {
	Kind    PresenceKind `json:"kind"`
	Records []Record     `json:"records"`
}

// PresenceSet is the visible presence state built from events.
type PresenceSet struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewPresenceSet returns an empty set.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{records: make(map[string]Record)}
}

// Apply folds ev into the set. A sync replaces everything.
func (p *PresenceSet) Apply(ev PresenceEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Kind {
	case PresenceSync:
		p.records = make(map[string]Record, len(ev.Records))
		for _, r := range ev.Records {
			p.records[r.UserID] = r
		}
	case PresenceJoin:
		for _, r := range ev.Records {
			p.records[r.UserID] = r
		}
	case PresenceLeave:
		for _, r := range ev.Records {
			delete(p.records, r.UserID)
		}
	}
}

// Online returns records seen within ttl of now, ordered by user id.
func (p *PresenceSet) Online(now time.Time, ttl time.Duration) []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return live(p.records, now, ttl)
}

func live(records map[string]Record, now time.Time, ttl time.Duration) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if ttl <= 0 || now.Sub(r.LastSeenAt) <= ttl {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// PresenceChannel is the presence transport.
type PresenceChannel interface {
	Heartbeat(ctx context.Context, r Record) error
	Leave(ctx context.Context, userID string) error
	Snapshot(ctx context.Context) ([]Record, error)
	// Watch delivers a sync with the current snapshot, then every event
	// until cancel is called.
	Watch(ctx context.Context, fn func(PresenceEvent)) (cancel func(), err error)
}

// MemoryPresence is an in-process PresenceChannel.
type MemoryPresence struct {
	mu       sync.Mutex
	records  map[string]Record
	watchers map[int]func(PresenceEvent)
	nextID   int
}

var _ PresenceChannel = (*MemoryPresence)(nil)

// NewMemoryPresence returns an empty channel.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{records: make(map[string]Record), watchers: make(map[int]func(PresenceEvent))}
}

func (m *MemoryPresence) Heartbeat(ctx context.Context, r Record) error {
	m.mu.Lock()
	m.records[r.UserID] = r
	m.mu.Unlock()
	m.broadcast(PresenceEvent{Kind: PresenceJoin, Records: []Record{r}})
	return nil
}

func (m *MemoryPresence) Leave(ctx context.Context, userID string) error {
	m.mu.Lock()
	delete(m.records, userID)
	m.mu.Unlock()
	m.broadcast(PresenceEvent{Kind: PresenceLeave, Records: []Record{{UserID: userID}}})
	return nil
}

func (m *MemoryPresence) Snapshot(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return live(m.records, time.Time{}, 0), nil
}

func (m *MemoryPresence) Watch(ctx context.Context, fn func(PresenceEvent)) (func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	snapshot := live(m.records, time.Time{}, 0)
	m.mu.Unlock()

	fn(PresenceEvent{Kind: PresenceSync, Records: snapshot})
	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}, nil
}

func (m *MemoryPresence) broadcast(ev PresenceEvent) {
	m.mu.Lock()
	fns := make([]func(PresenceEvent), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

const (
	presenceKey     = "presence"
	presenceChannel = "presence:events"
)

// RedisPresence keeps records in a Redis hash and fans events out over
// pub/sub. Entries older than the TTL are pruned by Prune.
type RedisPresence struct {
	cache  *cache.Cache
	clock  clock.Clock
	ttl    time.Duration
	logger *zap.Logger
}

var _ PresenceChannel = (*RedisPresence)(nil)

// NewRedisPresence returns a channel on c.
func NewRedisPresence(c *cache.Cache, clk clock.Clock, ttl time.Duration, logger *zap.Logger) *RedisPresence {
	if clk == nil {
		clk = clock.Real{}
	}
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &RedisPresence{cache: c, clock: clk, ttl: ttl, logger: logging.OrNop(logger).With(zap.String("component", "presence"))}
}

func (p *RedisPresence) Heartbeat(ctx context.Context, r Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	if err := p.cache.HSet(ctx, presenceKey, r.UserID, raw); err != nil {
		return err
	}
	return p.publish(ctx, PresenceEvent{Kind: PresenceJoin, Records: []Record{r}})
}

func (p *RedisPresence) Leave(ctx context.Context, userID string) error {
	if err := p.cache.HDel(ctx, presenceKey, userID); err != nil {
		return err
	}
	return p.publish(ctx, PresenceEvent{Kind: PresenceLeave, Records: []Record{{UserID: userID}}})
}

func (p *RedisPresence) Snapshot(ctx context.Context) ([]Record, error) {
	all, err := p.cache.HGetAll(ctx, presenceKey)
	if err != nil {
		return nil, err
	}
	records := make(map[string]Record, len(all))
	for userID, raw := range all {
		var r Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			p.logger.Warn("dropping malformed presence entry", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		records[userID] = r
	}
	return live(records, p.clock.Now(), p.ttl), nil
}

// Prune removes entries past the TTL and broadcasts an authoritative sync.
func (p *RedisPresence) Prune(ctx context.Context) error {
	all, err := p.cache.HGetAll(ctx, presenceKey)
	if err != nil {
		return err
	}
	now := p.clock.Now()
	for userID, raw := range all {
		var r Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil || now.Sub(r.LastSeenAt) > p.ttl {
			if err := p.cache.HDel(ctx, presenceKey, userID); err != nil {
				return err
			}
		}
	}
	snapshot, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	return p.publish(ctx, PresenceEvent{Kind: PresenceSync, Records: snapshot})
}

func (p *RedisPresence) Watch(ctx context.Context, fn func(PresenceEvent)) (func(), error) {
	ps, err := p.cache.Subscribe(ctx, presenceChannel)
	if err != nil {
		return nil, err
	}
	snapshot, err := p.Snapshot(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}
	fn(PresenceEvent{Kind: PresenceSync, Records: snapshot})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var ev PresenceEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.Warn("dropping malformed presence event", zap.Error(err))
				continue
			}
			fn(ev)
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

func (p *RedisPresence) publish(ctx context.Context, ev PresenceEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode presence event: %w", err)
	}
	return p.cache.Publish(ctx, presenceChannel, raw)
}

// Tracker keeps the local user's own presence fresh: a heartbeat on Start,
// one every interval, and one on each Foreground call.
type Tracker struct {
	channel  PresenceChannel
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	self    Record
	timer   clock.Timer
	ctx     context.Context
	running bool
}

// NewTracker returns a stopped tracker for self.
func NewTracker(ch PresenceChannel, clk clock.Clock, interval time.Duration, self Record, logger *zap.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Tracker{
		channel:  ch,
		clock:    clk,
		interval: interval,
		self:     self,
		logger:   logging.OrNop(logger).With(zap.String("component", "presence-tracker")),
	}
}

// Start sends the first heartbeat and schedules the rest.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.ctx = context.WithoutCancel(ctx)
	t.mu.Unlock()

	t.beat()
	t.schedule()
}

// Foreground sends an immediate heartbeat, typically when the page becomes
// visible again.
func (t *Tracker) Foreground() {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if running {
		t.beat()
	}
}

// SetPage updates the page reported by later heartbeats.
func (t *Tracker) SetPage(page string) {
	t.mu.Lock()
	t.self.Page = page
	t.mu.Unlock()
}

// Stop cancels the schedule and announces the leave.
func (t *Tracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	userID := t.self.UserID
	t.mu.Unlock()
	return t.channel.Leave(ctx, userID)
}

func (t *Tracker) schedule() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.timer = t.clock.AfterFunc(t.interval, func() {
		t.beat()
		t.schedule()
	})
}

func (t *Tracker) beat() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	r := t.self
	ctx := t.ctx
	t.mu.Unlock()

	r.LastSeenAt = t.clock.Now().UTC()
	if err := t.channel.Heartbeat(ctx, r); err != nil {
		t.logger.Warn("presence heartbeat failed", zap.String("user_id", r.UserID), zap.Error(err))
	}
}
