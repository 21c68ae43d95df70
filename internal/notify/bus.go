package notify

import (
	"sync"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler reacts to an event. It runs on the publisher's goroutine and
// should return quickly.
type Handler func(Event)

// Publisher accepts events from a transport.
type Publisher interface {
	Publish(evt Event)
}

// Observer is told about every published event.
type Observer interface {
	ObservePushEvent(source, eventType string)
}

// Bus fans events out to subscribers. The zero value is not usable; call
// NewBus.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
	observer Observer
	logger   *logging.Logger
}

// NewBus creates an empty bus.
func NewBus(observer Observer, logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{
		handlers: make(map[uint64]Handler),
		observer: observer,
		logger:   logger.Component("notify"),
	}
}

// Subscribe registers h and returns a func that removes it. The returned
// func is idempotent.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers evt to every current subscriber. A panicking handler is
// logged and does not stop delivery to the others.
func (b *Bus) Publish(evt Event) {
	if b.observer != nil {
		b.observer.ObservePushEvent(evt.Source, evt.Type)
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	b.logger.Debug("push event", "type", evt.Type, "source", evt.Source, "subscribers", len(handlers))
	for _, h := range handlers {
		b.deliver(h, evt)
	}
}

func (b *Bus) deliver(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("push handler panicked", "type", evt.Type, "panic", r)
		}
	}()
	h(evt)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
