package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/smokestack-project/smokestack/pkg/metrics"
)

// Bus fans events out to per-connection subscribers. The publisher never
// blocks: each subscriber owns a bounded queue, and a subscriber whose queue
// is full when an event arrives is evicted. Events published by the single
// writer arrive in every surviving queue in commit order.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*Subscriber
	byUser    map[string]map[string]*Subscriber
	queueSize int
}

// Subscriber is one registered consumer, usually a WebSocket connection.
// Its channel is closed exactly once, either by Unsubscribe or by eviction.
type Subscriber struct {
	ID   string
	User string

	ch      chan Event
	evicted bool // guarded by the bus mutex
	closed  bool // guarded by the bus mutex
}

// Events returns the subscriber's delivery channel. The channel is closed
// when the subscriber is unsubscribed or evicted; after close, Evicted
// reports which of the two happened.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// NewBus creates a bus with the given per-subscriber queue capacity.
func NewBus(queueSize int) *Bus {
	return &Bus{
		subs:      make(map[string]*Subscriber),
		byUser:    make(map[string]map[string]*Subscriber),
		queueSize: queueSize,
	}
}

// Subscribe registers a new consumer for the given user.
func (b *Bus) Subscribe(user string) *Subscriber {
	s := &Subscriber{
		ID:   uuid.New().String(),
		User: user,
		ch:   make(chan Event, b.queueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[s.ID] = s
	if b.byUser[user] == nil {
		b.byUser[user] = make(map[string]*Subscriber)
	}
	b.byUser[user][s.ID] = s
	return s
}

// Unsubscribe removes the consumer and closes its channel. Safe to call
// after eviction.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(s)
}

// Evicted reports whether the subscriber was dropped for falling behind.
// Meaningful once the events channel is closed.
func (b *Bus) Evicted(s *Subscriber) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return s.evicted
}

// Publish delivers the event to every subscriber of every named user. The
// user list may contain duplicates; each connection receives at most one
// copy per event.
func (b *Bus) Publish(ev Event, users []string) {
	metrics.EventsPublishedTotal.WithLabelValues(string(ev.Kind)).Inc()

	seen := make(map[string]bool, len(users))
	var slow []*Subscriber

	// Sends happen under the read lock: remove closes channels only under
	// the write lock, so no send can race a close. The sends stay
	// non-blocking, so the lock is held only briefly.
	b.mu.RLock()
	for _, user := range users {
		if seen[user] {
			continue
		}
		seen[user] = true
		for _, s := range b.byUser[user] {
			select {
			case s.ch <- ev:
			default:
				slow = append(slow, s)
			}
		}
	}
	b.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	b.mu.Lock()
	for _, s := range slow {
		if s.closed {
			continue
		}
		slog.Warn("Evicting slow event subscriber",
			"subscriber_id", s.ID, "user", s.User)
		s.evicted = true
		b.remove(s)
		metrics.SubscribersEvictedTotal.Inc()
	}
	b.mu.Unlock()
}

// SubscriberCount returns the number of registered consumers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// remove must be called with the write lock held.
func (b *Bus) remove(s *Subscriber) {
	if s.closed {
		return
	}
	s.closed = true
	delete(b.subs, s.ID)
	if m := b.byUser[s.User]; m != nil {
		delete(m, s.ID)
		if len(m) == 0 {
			delete(b.byUser, s.User)
		}
	}
	close(s.ch)
}
