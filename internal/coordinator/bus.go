package coordinator

import (
	"sync"

	"livecast/internal/models"
)

// Buffer depth of a subscriber's event channel. Sends never block: a full
// buffer counts as a missed delivery, and a subscriber that misses
// maxMisses deliveries in a row is dropped.
const (
	subscriberBuffer = 16
	maxMisses        = 8
)

// Subscriber is one connected client's view of the bus. Events arrive on C;
// the channel is closed when the subscriber is unsubscribed or dropped for
// falling behind.
type Subscriber struct {
	ID string
	C  chan models.Event

	room   string
	misses int
}

// Bus fans events out to connected clients. Room events reach only the
// subscribers currently placed in that room; lifecycle events reach every
// subscriber. Delivery is best-effort and at-most-once: there is no replay
// for clients that were disconnected or behind, they requery current state
// on reconnect.
type Bus struct {
	mu    sync.Mutex
	subs  map[string]*Subscriber
	rooms map[string]map[string]*Subscriber

	// dropped, when set, is called in a fresh goroutine after a slow
	// subscriber has been removed and its channel closed.
	dropped func(connID string)

	// missed, when set, is called for every delivery skipped because a
	// subscriber's buffer was full.
	missed func()
}

func NewBus() *Bus {
	return &Bus{
		subs:  make(map[string]*Subscriber),
		rooms: make(map[string]map[string]*Subscriber),
	}
}

// OnDrop registers the cleanup hook invoked for subscribers removed after
// repeated failed deliveries. Set once during wiring, before any traffic.
func (b *Bus) OnDrop(fn func(connID string)) {
	b.dropped = fn
}

// OnMiss registers a hook observed on every skipped delivery.
func (b *Bus) OnMiss(fn func()) {
	b.missed = fn
}

// Subscribe registers a connection and returns its subscriber handle.
// Subscribing an already-registered id replaces the old subscription.
func (b *Bus) Subscribe(connID string) *Subscriber {
	sub := &Subscriber{ID: connID, C: make(chan models.Event, subscriberBuffer)}
	b.mu.Lock()
	if old, ok := b.subs[connID]; ok {
		b.removeLocked(old)
	}
	b.subs[connID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a connection and closes its event channel.
func (b *Bus) Unsubscribe(connID string) {
	b.mu.Lock()
	sub, ok := b.subs[connID]
	if ok {
		b.removeLocked(sub)
	}
	b.mu.Unlock()
}

// SetRoom places a subscriber in a room for presence-event delivery,
// removing it from any previous room.
func (b *Bus) SetRoom(connID, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[connID]
	if !ok {
		return
	}
	b.clearRoomLocked(sub)
	if sessionID == "" {
		return
	}
	room, ok := b.rooms[sessionID]
	if !ok {
		room = make(map[string]*Subscriber)
		b.rooms[sessionID] = room
	}
	room[connID] = sub
	sub.room = sessionID
}

// PublishRoom delivers an event to the members of one room.
func (b *Bus) PublishRoom(sessionID string, ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.rooms[sessionID] {
		b.sendLocked(sub, ev)
	}
}

// PublishAll delivers an event to every subscriber.
func (b *Bus) PublishAll(ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		b.sendLocked(sub, ev)
	}
}

func (b *Bus) sendLocked(sub *Subscriber, ev models.Event) {
	select {
	case sub.C <- ev:
		sub.misses = 0
	default:
		sub.misses++
		if b.missed != nil {
			b.missed()
		}
		if sub.misses >= maxMisses {
			b.removeLocked(sub)
			if b.dropped != nil {
				go b.dropped(sub.ID)
			}
		}
	}
}

func (b *Bus) removeLocked(sub *Subscriber) {
	b.clearRoomLocked(sub)
	delete(b.subs, sub.ID)
	close(sub.C)
}

func (b *Bus) clearRoomLocked(sub *Subscriber) {
	if sub.room == "" {
		return
	}
	if room, ok := b.rooms[sub.room]; ok {
		delete(room, sub.ID)
		if len(room) == 0 {
			delete(b.rooms, sub.room)
		}
	}
	sub.room = ""
}
