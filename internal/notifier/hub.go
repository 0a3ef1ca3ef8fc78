// Package notifier fans committed room events out to subscribers
package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/utils"
	"github.com/rs/zerolog"
)

var (
	// ErrSlowSubscriber ends a subscription whose buffer filled up. Everything
	// delivered before it is still a gap-free prefix of the room's events.
	ErrSlowSubscriber = errors.New("subscriber fell behind and was disconnected")
	// ErrRoomClosed ends every subscription of a room once it is closed
	ErrRoomClosed = errors.New("room closed")
	// ErrShutdown ends every subscription when the hub shuts down
	ErrShutdown = errors.New("notifier shut down")
)

// Subscription is one consumer's ordered stream of a room's events
type Subscription struct {
	id     uint64
	roomID string
	events chan models.ChangeEvent
	hub    *Hub
	stop   func() bool

	mu  sync.Mutex
	err error
}

// Events returns the stream. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.events
}

// Err returns why the stream ended. It is nil while the stream is open
// and after a normal unsubscribe.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// Hub keeps the subscriber set of every room. Publishing never blocks: a
// subscriber that cannot keep up is cut off instead of stalling the room.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	log    zerolog.Logger
}

// NewHub creates a hub whose subscribers each buffer up to buffer events
func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		rooms:  make(map[string]map[uint64]*Subscription),
		buffer: buffer,
		log:    utils.Module(logger, "notifier"),
	}
}

// Subscribe registers a subscriber for roomID. It receives every event
// published after this call returns. Cancelling ctx unsubscribes.
func (h *Hub) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrShutdown
	}

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		roomID: roomID,
		events: make(chan models.ChangeEvent, h.buffer),
		hub:    h,
	}

	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[uint64]*Subscription)
		h.rooms[roomID] = subs
	}
	subs[sub.id] = sub

	sub.stop = context.AfterFunc(ctx, sub.Close)

	h.log.Debug().Str("room_id", roomID).Uint64("subscriber", sub.id).Int("subscribers", len(subs)).Msg("subscribed")
	return sub, nil
}

// Unsubscribe removes the subscription without affecting any other
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.end(sub, nil)
}

// Publish delivers events, in order, to every subscriber of roomID.
// Callers must publish a room's events in commit order.
func (h *Hub) Publish(roomID string, events ...models.ChangeEvent) {
	if len(events) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.rooms[roomID] {
		for _, ev := range events {
			select {
			case sub.events <- ev:
				continue
			default:
			}

			h.log.Warn().Str("room_id", roomID).Uint64("subscriber", sub.id).
				Uint64("seq", ev.Seq).Msg("disconnecting slow subscriber")
			h.end(sub, ErrSlowSubscriber)
			break
		}
	}
}

// CloseRoom ends every subscription of roomID with ErrRoomClosed. Events
// already buffered are still delivered before the stream closes.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.rooms[roomID] {
		h.end(sub, ErrRoomClosed)
	}
}

// SubscriberCount returns the number of live subscriptions for roomID
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms[roomID])
}

// Shutdown ends all subscriptions and rejects new ones
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, subs := range h.rooms {
		for _, sub := range subs {
			h.end(sub, ErrShutdown)
		}
	}
}

// end must be called with h.mu held
func (h *Hub) end(sub *Subscription, reason error) {
	subs, ok := h.rooms[sub.roomID]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}

	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.rooms, sub.roomID)
	}

	sub.mu.Lock()
	sub.err = reason
	sub.mu.Unlock()
	close(sub.events)

	if sub.stop != nil {
		sub.stop()
	}
}
