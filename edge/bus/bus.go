// Package bus implements the edge node's in-process publish/subscribe
// mediator: a bounded replay buffer per topic, per-subscriber bounded
// channels, publish/subscriber counters, and an optional outbound bridge.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/ghuser/xscontrol/pkg/logger"
)

// defaultReplayLimit is the default replay buffer depth per topic.
const defaultReplayLimit = 50

// defaultQueueDepth bounds each subscriber's channel; Publish suspends once a
// slow subscriber's queue is full.
const defaultQueueDepth = 64

// Bridge is the narrow capability the bus needs from the MQTT bridge:
// forward one published event upstream. Implemented by edge/bridge.Bridge;
// a test double may implement it directly.
type Bridge interface {
	Publish(topic string, payload map[string]any) error
}

// Persister is the narrow capability the bus needs from storage: record a
// publish for audit/replay-on-disk purposes. Failures are logged and
// swallowed — the bus must never fail local delivery because an external
// collaborator failed.
type Persister interface {
	InsertEvent(name string, data any) error
}

type entry struct {
	timestamp time.Time
	payload   map[string]any
}

type topicState struct {
	mu          sync.Mutex
	subscribers []chan map[string]any
	replay      []entry
	published   int
}

// Bus is the edge node's publish/subscribe mediator. Safe for concurrent use
// by many publishers and subscribers.
type Bus struct {
	log         logger.Logger
	replayLimit int

	mu     sync.RWMutex
	topics map[string]*topicState

	bridgeMu sync.Mutex
	bridge   Bridge

	store Persister
}

// New returns a Bus. store may be nil to disable persistence; unlike the
// bridge it is attached once at construction and has no detach operation.
func New(log logger.Logger, store Persister) *Bus {
	return &Bus{
		log:         log,
		replayLimit: defaultReplayLimit,
		topics:      make(map[string]*topicState),
		store:       store,
	}
}

func (b *Bus) state(topic string) *topicState {
	b.mu.RLock()
	st, ok := b.topics[topic]
	b.mu.RUnlock()
	if ok {
		return st
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok = b.topics[topic]; ok {
		return st
	}
	st = &topicState{}
	b.topics[topic] = st
	return st
}

// Publish appends (timestamp, payload) to topic's replay buffer, enqueues
// the payload to every subscriber registered before this call, optionally
// persists it, and optionally forwards it to the attached bridge. A
// subscriber added after Publish returns will not see this payload
// (invariant 1). Publish suspends if a subscriber's queue is full, or until
// ctx is done.
func (b *Bus) Publish(ctx context.Context, topic string, payload map[string]any) error {
	st := b.state(topic)

	st.mu.Lock()
	st.published++
	st.replay = append(st.replay, entry{timestamp: time.Now(), payload: payload})
	if len(st.replay) > b.replayLimit {
		st.replay = st.replay[len(st.replay)-b.replayLimit:]
	}
	subs := make([]chan map[string]any, len(st.subscribers))
	copy(subs, st.subscribers)
	st.mu.Unlock()

	if b.store != nil {
		if err := b.store.InsertEvent(topic, payload); err != nil {
			b.log.Error("bus: persistence hook failed", "topic", topic, "error", err)
		}
	}

	for _, q := range subs {
		select {
		case q <- payload:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.bridgeMu.Lock()
	br := b.bridge
	b.bridgeMu.Unlock()
	if br != nil {
		if err := br.Publish(topic, payload); err != nil {
			b.log.Warn("bus: bridge publish failed", "topic", topic, "error", err)
		}
	}

	return nil
}

// Subscribe returns a fresh bounded channel registered against topic.
// Multiple subscribers per topic are allowed; each gets every payload
// published after it subscribes, in publish order.
func (b *Bus) Subscribe(topic string) <-chan map[string]any {
	st := b.state(topic)
	q := make(chan map[string]any, defaultQueueDepth)

	st.mu.Lock()
	st.subscribers = append(st.subscribers, q)
	st.mu.Unlock()

	return q
}

// Replay returns up to the last k events published to topic, in publish
// order (invariant 2: a suffix of the full history, bounded by
// min(k, replayLimit)).
func (b *Bus) Replay(topic string, k int) []map[string]any {
	st := b.state(topic)

	st.mu.Lock()
	defer st.mu.Unlock()

	n := len(st.replay)
	if k < n {
		n = k
	}
	if n <= 0 {
		return nil
	}
	out := make([]map[string]any, n)
	start := len(st.replay) - n
	for i := 0; i < n; i++ {
		out[i] = st.replay[start+i].payload
	}
	return out
}

// TopicStats is one topic's row in Stats().
type TopicStats struct {
	Published    int `json:"published"`
	Subscribers  int `json:"subscribers"`
	ReplayDepth  int `json:"replay_depth"`
}

// Stats returns a consistent-per-topic snapshot of published count,
// subscriber count, and replay depth.
func (b *Bus) Stats() map[string]TopicStats {
	b.mu.RLock()
	topics := make([]string, 0, len(b.topics))
	states := make([]*topicState, 0, len(b.topics))
	for t, st := range b.topics {
		topics = append(topics, t)
		states = append(states, st)
	}
	b.mu.RUnlock()

	out := make(map[string]TopicStats, len(topics))
	for i, t := range topics {
		st := states[i]
		st.mu.Lock()
		out[t] = TopicStats{
			Published:   st.published,
			Subscribers: len(st.subscribers),
			ReplayDepth: len(st.replay),
		}
		st.mu.Unlock()
	}
	return out
}

// AttachBridge idempotently attaches b as the bus's outbound bridge.
func (b *Bus) AttachBridge(br Bridge) {
	b.bridgeMu.Lock()
	b.bridge = br
	b.bridgeMu.Unlock()
	b.log.Info("bus: bridge attached")
}

// DetachBridge idempotently removes the attached bridge.
func (b *Bus) DetachBridge() {
	b.bridgeMu.Lock()
	b.bridge = nil
	b.bridgeMu.Unlock()
	b.log.Info("bus: bridge detached")
}
