// Package bus implements the in-process notifier that wakes scheduler
// watchers whenever a mutation touches assignments, jobGroups, or jobs.
// Chat-job mutations publish nothing on it.
package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/relayforge/taskmesh/internal/engine"
)

// ChannelBus is a topic-keyed fan-out bus: each Publish dispatches to every
// handler currently subscribed to that topic, each in its own goroutine so a
// slow subscriber never blocks the publisher.
type ChannelBus struct {
	mu   sync.RWMutex
	subs map[string]map[string]func(engine.Event)
}

// NewChannelBus returns an empty bus.
func NewChannelBus() *ChannelBus {
	return &ChannelBus{subs: make(map[string]map[string]func(engine.Event))}
}

// Publish notifies every current subscriber of topic. It never returns an
// error; delivery is best-effort and asynchronous.
func (b *ChannelBus) Publish(topic string, e engine.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, handler := range b.subs[topic] {
		go handler(e)
	}
	return nil
}

// Subscribe registers handler for topic and returns a Subscription that
// removes it on Unsubscribe.
func (b *ChannelBus) Subscribe(topic string, handler func(engine.Event)) (engine.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]func(engine.Event))
	}
	id := uuid.New().String()
	b.subs[topic][id] = handler
	return &subscription{bus: b, topic: topic, id: id}, nil
}

type subscription struct {
	bus   *ChannelBus
	topic string
	id    string
}

func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs[s.topic], s.id)
}

// NamespaceTopic returns the topic name used for all notifier events scoped
// to a namespace.
func NamespaceTopic(namespaceID string) string {
	return "namespace:" + namespaceID
}
