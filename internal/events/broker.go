package events

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// Filter decides whether a subscriber receives an event.
type Filter func(OrderEvent) bool

// Subscription is one listener on a Broker. C is closed when the
// subscription ends, either through Close or because the subscriber fell
// too far behind.
type Subscription struct {
	C <-chan OrderEvent

	ch     chan OrderEvent
	filter Filter
	broker *Broker
	once   sync.Once
}

func (s *Subscription) Close() {
	s.broker.remove(s)
}

// Broker is the in-process fan-out used by push clients. It never blocks a
// publisher: a subscriber whose buffer is full is dropped.
type Broker struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

func (b *Broker) Subscribe(filter Filter) *Subscription {
	ch := make(chan OrderEvent, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, filter: filter, broker: b}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Broker) Publish(_ context.Context, event OrderEvent) error {
	var slow []*Subscription

	b.mu.RLock()
	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		b.remove(sub)
	}
	return nil
}

// Len reports the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()

	if ok {
		sub.once.Do(func() { close(sub.ch) })
	}
}
