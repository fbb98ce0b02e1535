package session

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Hub lazily creates one Coordinator per room and hands out the existing
// one afterwards. Coordinators stay alive until Shutdown so reconnecting
// clients land back on warm state.
type Hub struct {
	store Store
	clock clockwork.Clock

	mu    sync.RWMutex
	rooms map[uint]*Coordinator
}

func NewHub(store Store, clock clockwork.Clock) *Hub {
	return &Hub{store: store, clock: clock, rooms: make(map[uint]*Coordinator)}
}

// GetRoom returns the live coordinator for roomID, hydrating it from the
// store on first use.
func (h *Hub) GetRoom(ctx context.Context, roomID uint) (*Coordinator, error) {
	h.mu.RLock()
	c := h.rooms[roomID]
	h.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	room, err := h.store.RoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c = h.rooms[roomID]; c != nil {
		return c, nil
	}
	c = newCoordinator(h.store, h.clock, *room)
	if err := c.hydrate(ctx); err != nil {
		return nil, err
	}
	h.rooms[roomID] = c
	go c.run()
	return c, nil
}

// Online reports live members without forcing a cold room to load.
func (h *Hub) Online(roomID uint) int {
	h.mu.RLock()
	c := h.rooms[roomID]
	h.mu.RUnlock()
	if c == nil {
		return 0
	}
	return c.Online()
}

// Drop closes and forgets a room's coordinator, used when the room is
// deleted.
func (h *Hub) Drop(roomID uint) {
	h.mu.Lock()
	c := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()
	if c != nil {
		c.close()
	}
}

// Shutdown stops every coordinator goroutine.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.rooms {
		c.close()
		delete(h.rooms, id)
	}
}
