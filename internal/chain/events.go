package chain

import "sync"

// Event names the nine lifecycle events Blockchain emits (§4.6.2).
type Event string

const (
	EventChainLoaded         Event = "chainLoaded"
	EventGenesisCreated      Event = "genesisCreated"
	EventEntryAdded          Event = "entryAdded"
	EventBlockCreationStarted Event = "blockCreationStarted"
	EventBlockCreated        Event = "blockCreated"
	EventIncentiveProcessed  Event = "incentiveProcessed"
	EventBlockCreationEnded  Event = "blockCreationEnded"
	EventPeerBlockAccepted   Event = "peerBlockAccepted"
	EventPeerChainAccepted   Event = "peerChainAccepted"
)

// Handler receives an event's payload. Blockchain publishes these shapes:
// chainLoaded and peerChainAccepted carry a []block.Block; genesisCreated,
// blockCreated and peerBlockAccepted carry a block.Block; entryAdded
// carries an entry.Entry; blockCreationEnded carries a *block.Block that
// is nil when no block was committed; blockCreationStarted and
// incentiveProcessed carry nil.
type Handler func(payload any)

// EventBus is a minimal synchronous publish-subscribe surface, modeled on
// the teacher's event.TypeMux (mux.Post/subscriber-channel pattern in
// miner/worker.go) but scoped to Blockchain's fixed event vocabulary and
// dispatched as direct calls rather than channels, since every subscriber
// here (EntryPool, Consensus, Node) reacts synchronously and briefly.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

// NewEventBus constructs an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[Event][]Handler)}
}

// Subscribe registers handler to run, in registration order, every time
// event is published.
func (b *EventBus) Subscribe(event Event, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish invokes every handler registered for event, in order, with
// payload. Publish must never be called while the caller holds
// Blockchain's own mutex, since handlers are free to call back into
// Blockchain's public methods.
func (b *EventBus) Publish(event Event, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(payload)
	}
}
