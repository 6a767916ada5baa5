package events

import (
	"context"
	"fmt"
	"sync"
)

// Handler reacts to a published event. Handlers run on the publisher's
// goroutine and should return quickly.
type Handler func(Event)

type subscription struct {
	id      uint64
	kind    Kind
	all     bool
	handler Handler
}

// Bus is a process-wide publish/subscribe channel. Delivery is synchronous
// and in registration order to the listeners registered when Publish is
// called. The zero value is ready to use.
type Bus struct {
	mu            sync.RWMutex
	subscriptions []subscription
	nextID        uint64
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for events of the given kind. The returned
// function removes the registration and is safe to call more than once.
func (b *Bus) Subscribe(kind Kind, handler Handler) (unsubscribe func()) {
	return b.subscribe(subscription{kind: kind, handler: handler})
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	return b.subscribe(subscription{all: true, handler: handler})
}

func (b *Bus) subscribe(sub subscription) func() {
	if b == nil || sub.handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subscriptions = append(b.subscriptions, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub.id) })
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscriptions {
		if sub.id == id {
			// copy-on-write so in-flight Publish snapshots stay intact
			subscriptions := make([]subscription, 0, len(b.subscriptions)-1)
			subscriptions = append(subscriptions, b.subscriptions[:i]...)
			subscriptions = append(subscriptions, b.subscriptions[i+1:]...)
			b.subscriptions = subscriptions
			return
		}
	}
}

// Publish delivers event to all matching listeners before returning. A
// panicking listener is logged and skipped.
func (b *Bus) Publish(event Event) {
	if b == nil || event == nil {
		return
	}

	b.mu.RLock()
	subscriptions := b.subscriptions
	b.mu.RUnlock()

	for _, sub := range subscriptions {
		if !sub.all && sub.kind != event.Kind() {
			continue
		}
		deliver(sub.handler, event)
	}
}

// Listeners reports how many listeners would receive an event of kind.
func (b *Bus) Listeners(kind Kind) int {
	if b == nil {
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, sub := range b.subscriptions {
		if sub.all || sub.kind == kind {
			count++
		}
	}
	return count
}

func deliver(handler Handler, event Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorContext(context.Background(), "event listener panicked",
				"kind", string(event.Kind()),
				"panic", fmt.Sprint(recovered),
			)
		}
	}()

	handler(event)
}
