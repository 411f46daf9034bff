// Package eventbus is a small typed pub/sub used to fan the Alert
// Router's output out to the subsystems that care about it (the
// Automation Agent's move-on-complete handler and the engine's own
// subscriptions), per spec §2/§9.
//
// Handlers are copied out from under a short-lived lock and invoked
// unlocked, so a handler that itself publishes (or subscribes) never
// deadlocks against the bus.
package eventbus

import "sync"

// Event is any value published on the bus. The concrete event types
// live in the session package (session.Alert-derived events).
type Event interface{}

// Handler receives one published event.
type Handler func(Event)

// Bus is a single-process, synchronous-dispatch pub/sub keyed by a
// string topic (the session package's Topic* constants, such as
// "session.state_update").
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers fn to be called for every event published under
// topic.
func (b *Bus) Subscribe(topic string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], fn)
}

// Publish invokes every handler subscribed to topic, in registration
// order. Handlers are snapshotted under the lock and invoked outside
// it.
func (b *Bus) Publish(topic string, ev Event) {
	b.mu.Lock()
	hs := make([]Handler, len(b.handlers[topic]))
	copy(hs, b.handlers[topic])
	b.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}
