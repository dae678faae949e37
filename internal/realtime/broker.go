package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/observability"
)

const defaultBuffer = 64

// Publisher accepts change events produced by a write.
type Publisher interface {
	Publish(evt chat.Event)
}

// NopPublisher discards events. It is used when the database itself raises
// change notifications.
type NopPublisher struct{}

func (NopPublisher) Publish(chat.Event) {}

// Broker fans change events out to filtered subscribers. Delivery is
// non-blocking: a subscriber whose buffer is full misses the event.
type Broker struct {
	mu   sync.RWMutex
	subs map[uint64]*Subscription
	next uint64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]*Subscription)}
}

// Subscription is one consumer's view of the broker.
type Subscription struct {
	id      uint64
	filter  chat.Filter
	events  chan chat.Event
	broker  *Broker
	once    sync.Once
	dropped atomic.Int64
}

// Subscribe registers a consumer for events matching filter.
func (b *Broker) Subscribe(filter chat.Filter, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	sub := &Subscription{
		id:     b.next,
		filter: filter,
		events: make(chan chat.Event, buffer),
		broker: b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers evt to every matching subscriber.
func (b *Broker) Publish(evt chat.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.filter.Match(evt) {
			continue
		}
		select {
		case sub.events <- evt:
		default:
			if n := sub.dropped.Add(1); n == 1 || n%100 == 0 {
				observability.Logger().Warn("realtime subscriber lagging, dropping events",
					"subscription", sub.id, "table", sub.filter.Table, "dropped", n)
			}
		}
	}
}

// Len reports the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan chat.Event {
	return s.events
}

// Filter returns the subscription's filter.
func (s *Subscription) Filter() chat.Filter {
	return s.filter
}

// Dropped reports how many events were discarded for this subscriber.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s.id)
		s.broker.mu.Unlock()
		close(s.events)
	})
	return nil
}
