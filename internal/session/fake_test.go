package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/npezzotti/earth-board/internal/realtime"
)

// fakeBus is an in-process Transport with the hub's delivery rules.
type fakeBus struct {
	mu       sync.Mutex
	subs     map[string][]*fakeSub
	presence map[string]map[string]int
	seq      int64
	joinErr  error
	trackErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		subs:     make(map[string][]*fakeSub),
		presence: make(map[string]map[string]int),
	}
}

type fakeSub struct {
	bus     *fakeBus
	topic   string
	opts    realtime.JoinOptions
	h       realtime.Handlers
	tracked bool
}

func (b *fakeBus) Join(ctx context.Context, topic string, opts realtime.JoinOptions, h realtime.Handlers) (realtime.Subscription, error) {
	if b.joinErr != nil {
		return nil, b.joinErr
	}

	b.mu.Lock()
	sub := &fakeSub{bus: b, topic: topic, opts: opts, h: h}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return sub, nil
}

func (b *fakeBus) members(topic string) []*fakeSub {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeSub{}, b.subs[topic]...)
}

// deliver sends a broadcast from outside any subscription.
func (b *fakeBus) deliver(topic, event string, payload any) {
	raw, _ := json.Marshal(payload)
	for _, s := range b.members(topic) {
		if s.h.OnBroadcast != nil {
			s.h.OnBroadcast(event, raw)
		}
	}
}

func (b *fakeBus) snapshot(topic string) *realtime.Presence {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	state := make(map[string][]json.RawMessage)
	for key := range b.presence[topic] {
		state[key] = []json.RawMessage{json.RawMessage(`{}`)}
	}
	return &realtime.Presence{Topic: topic, Seq: b.seq, State: state}
}

func (b *fakeBus) syncPresence(topic string) {
	snap := b.snapshot(topic)
	for _, s := range b.members(topic) {
		if s.h.OnPresence != nil {
			s.h.OnPresence(snap)
		}
	}
}

func (s *fakeSub) Topic() string {
	return s.topic
}

func (s *fakeSub) Send(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	for _, other := range s.bus.members(s.topic) {
		if other == s && !s.opts.Self {
			continue
		}
		if other.h.OnBroadcast != nil {
			other.h.OnBroadcast(event, raw)
		}
	}
	return nil
}

func (s *fakeSub) Track(ctx context.Context, meta any) error {
	if s.bus.trackErr != nil {
		return s.bus.trackErr
	}

	s.bus.mu.Lock()
	if s.bus.presence[s.topic] == nil {
		s.bus.presence[s.topic] = make(map[string]int)
	}
	if !s.tracked {
		s.bus.presence[s.topic][s.opts.PresenceKey]++
		s.tracked = true
	}
	s.bus.mu.Unlock()

	s.bus.syncPresence(s.topic)
	return nil
}

func (s *fakeSub) Leave(ctx context.Context) error {
	s.bus.mu.Lock()
	subs := s.bus.subs[s.topic]
	for i, other := range subs {
		if other == s {
			s.bus.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if s.tracked {
		keys := s.bus.presence[s.topic]
		keys[s.opts.PresenceKey]--
		if keys[s.opts.PresenceKey] == 0 {
			delete(keys, s.opts.PresenceKey)
		}
		s.tracked = false
	}
	s.bus.mu.Unlock()

	s.bus.syncPresence(s.topic)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 13, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
