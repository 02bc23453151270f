package pipeline

import "sync"

// Bus is the shared broadcast channel for pipeline events. Many trackers
// read it concurrently; publishers never contend with each other beyond
// the bus lock. Handlers run synchronously on the publisher's goroutine,
// so delivery order per publisher is the application order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscription detaches one handler from the bus. Unsubscribe is
// idempotent and safe to call concurrently with Publish; after it
// returns no further events are delivered to the handler.
type Subscription struct {
	bus *Bus
	id  int
}

func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}

// Subscribe registers a handler for every published event. Filtering by
// session or kind is the handler's concern.
func (b *Bus) Subscribe(handler func(Event)) *Subscription {
	if handler == nil {
		return &Subscription{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = handler
	return &Subscription{bus: b, id: id}
}

// Publish delivers the event to all current subscribers.
func (b *Bus) Publish(event Event) {
	if event == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, handler := range b.subs {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// SubscriberCount reports the number of attached handlers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
