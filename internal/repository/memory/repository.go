// Package memory provides an in-memory implementation of the repository interface
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/navikt/zseats/internal/models"
)

// Repository implements the repository interface with in-memory storage
type Repository struct {
	rooms map[string]*models.RoomState // Stores room state keyed by room ID
	codes map[string]string            // Active room codes mapped to room IDs
	mu    sync.RWMutex
}

// NewRepository creates a new in-memory repository
func NewRepository() *Repository {
	return &Repository{
		rooms: make(map[string]*models.RoomState),
		codes: make(map[string]string),
	}
}

// CreateRoom stores a new room with an empty state
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[room.ID]; exists {
		return fmt.Errorf("%w: room %s already exists", models.ErrConflict, room.ID)
	}
	if room.Active {
		if _, taken := r.codes[room.Code]; taken {
			return models.ErrCodeTaken
		}
		r.codes[room.Code] = room.ID
	}

	r.rooms[room.ID] = models.NewRoomState(*room)
	return nil
}

// GetRoom retrieves a room by ID
func (r *Repository) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.rooms[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	room := state.Room
	return &room, nil
}

// GetActiveRoomByCode retrieves the active room that currently owns code
func (r *Repository) GetActiveRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.codes[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	state, ok := r.rooms[id]
	if !ok || !state.Room.Active {
		return nil, models.ErrNotFound
	}
	room := state.Room
	return &room, nil
}

// LoadRoomState returns a copy of the room's current state
func (r *Repository) LoadRoomState(ctx context.Context, roomID string) (*models.RoomState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.rooms[roomID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return state.Clone(), nil
}

// SaveRoomState replaces the room's state if the stored version matches
func (r *Repository) SaveRoomState(ctx context.Context, state *models.RoomState, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rooms[state.Room.ID]
	if !ok {
		return models.ErrNotFound
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: room %s is at version %d, expected %d",
			models.ErrConflict, state.Room.ID, current.Version, expectedVersion)
	}

	if current.Room.Active && !state.Room.Active {
		if r.codes[current.Room.Code] == state.Room.ID {
			delete(r.codes, current.Room.Code)
		}
	}

	r.rooms[state.Room.ID] = state.Clone()
	return nil
}

// Ping always succeeds for the in-memory store
func (r *Repository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (r *Repository) Close() error {
	return nil
}
