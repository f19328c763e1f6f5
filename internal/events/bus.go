// Package events is an in-process publish/subscribe bus used to push queue
// and leaderboard changes to streaming connections. Delivery is best effort:
// nothing survives a restart and slow subscribers drop events.
package events

import (
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

type Topic string

const (
	TopicQueueUpdated       Topic = "queueUpdated"
	TopicLeaderboardUpdated Topic = "leaderboardUpdated"
)

type Event struct {
	Topic         Topic
	TransactionID uuid.UUID
	At            time.Time
}

const defaultBuffer = 16

type subscriber struct {
	ch     chan Event
	topics map[Topic]bool
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	buffer int
}

// NewBus creates a bus whose subscribers each buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{subs: make(map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe registers for the given topics, or all topics if none are given.
// The returned cancel func deregisters and closes the channel; it is safe to
// call more than once.
func (b *Bus) Subscribe(topics ...Topic) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, b.buffer), topics: make(map[Topic]bool, len(topics))}
	for _, t := range topics {
		sub.topics[t] = true
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			close(sub.ch)
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish delivers e to every interested subscriber without blocking.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if len(sub.topics) > 0 && !sub.topics[e.Topic] {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// PublishAll publishes one event per topic for the same transaction.
func (b *Bus) PublishAll(id uuid.UUID, topics ...Topic) {
	now := time.Now().UTC()
	for _, t := range topics {
		b.Publish(Event{Topic: t, TransactionID: id, At: now})
	}
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
