// Package bus implements the in-process publish/subscribe event bus
// that carries streaming events from provider adapters to the live
// display and the task tracker.
//
// Topics are per-provider strings of the form "agent:<provider>".
// Publish never blocks the caller: each subscriber owns an unbounded
// queue drained by its own goroutine, so one slow subscriber cannot
// stall delivery to others, and publish order to a single subscriber
// is preserved.
package bus

import (
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Event is the minimal contract for anything carried on the bus.
// Concrete event shapes live in the provider/task packages; the bus
// only needs to know the topic they were published under, which the
// caller supplies explicitly to Publish.
type Event any

// Bus is a topic-keyed, in-process publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[string]*subscription
	logger *zap.Logger
	nextID uint64
}

type subscription struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	fn     func(Event)
}

// New creates an empty Bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		topics: make(map[string]map[string]*subscription),
		logger: logger,
	}
}

// Topic builds the canonical "agent:<provider>" topic key.
func Topic(provider string) string {
	return "agent:" + provider
}

// Subscribe registers handler to receive events published on topic,
// in publish order, and returns a subscription id usable with
// Unsubscribe. The handler runs on a dedicated goroutine per
// subscription so a slow handler never blocks Publish or other
// subscribers.
func (b *Bus) Subscribe(topic string, handler func(Event)) string {
	b.mu.Lock()
	b.nextID++
	id := strconv.FormatUint(b.nextID, 10)
	sub := &subscription{fn: handler}
	sub.cond = sync.NewCond(&sub.mu)

	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[string]*subscription)
		b.topics[topic] = subs
	}
	subs[id] = sub
	b.mu.Unlock()

	go sub.run()
	return id
}

// Unsubscribe removes the subscription with the given id from topic.
func (b *Bus) Unsubscribe(topic, id string) {
	b.mu.Lock()
	subs, ok := b.topics[topic]
	var sub *subscription
	if ok {
		sub = subs[id]
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
	b.mu.Unlock()

	if sub != nil {
		sub.close()
	}
}

// Publish delivers event to every current subscriber of topic.
// Delivery is best-effort and asynchronous; Publish itself never
// blocks on a subscriber's handler.
func (b *Bus) Publish(topic string, event Event) {
	b.mu.RLock()
	subs := b.topics[topic]
	snapshot := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	for _, s := range snapshot {
		s.enqueue(event)
	}
}

func (s *subscription) enqueue(event Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscription) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(event)
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}
