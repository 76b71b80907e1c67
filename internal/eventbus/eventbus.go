package eventbus

import "sync"

// Wildcard subscribes to every topic.
const Wildcard = "*"

// Bus is a type-safe, topic-aware publish/subscribe bus for events of type T.
// Delivery is non-blocking: a subscriber whose buffer is full misses the event.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]map[string]struct{}
	buffer int
	closed bool
}

// New creates a Bus whose subscriber channels hold buffer events.
func New[T any](buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = 8
	}
	return &Bus[T]{subs: make(map[chan T]map[string]struct{}), buffer: buffer}
}

// Publish sends e to the subscribers of topic. When broadcast is true every
// subscriber receives it regardless of its topics.
func (b *Bus[T]) Publish(topic string, broadcast bool, e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch, topics := range b.subs {
		if !broadcast && !matches(topics, topic) {
			continue
		}
		select {
		case ch <- e:
		default:
		}
	}
}

func matches(topics map[string]struct{}, topic string) bool {
	if _, ok := topics[Wildcard]; ok {
		return true
	}
	_, ok := topics[topic]
	return ok
}

// Subscribe registers a subscriber for the given topics and returns its
// channel. No topics means every topic.
func (b *Bus[T]) Subscribe(topics ...string) <-chan T {
	ch := make(chan T, b.buffer)
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	if len(set) == 0 {
		set[Wildcard] = struct{}{}
	}
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs[ch] = set
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		if ch == sub {
			delete(b.subs, ch)
			close(ch)
			return
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes the bus and all subscriber channels.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
