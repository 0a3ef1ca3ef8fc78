// Package repository defines interfaces for data storage
package repository

import (
	"context"

	"github.com/navikt/zseats/internal/models"
)

// Repository stores rooms and their versioned state. A room's state is
// always read and written as a whole so that a commit is atomic.
type Repository interface {
	// CreateRoom stores a new room with an empty state at version 0.
	// Returns models.ErrCodeTaken if an active room already uses the code.
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	// GetActiveRoomByCode returns models.ErrNotFound for unknown codes and
	// for codes whose room has been closed
	GetActiveRoomByCode(ctx context.Context, code string) (*models.Room, error)

	// LoadRoomState returns a private copy of the room's state
	LoadRoomState(ctx context.Context, roomID string) (*models.RoomState, error)
	// SaveRoomState replaces the stored state if its version still equals
	// expectedVersion, and returns models.ErrConflict otherwise. The caller
	// sets state.Version to the new version before saving. Closing a room
	// releases its code.
	SaveRoomState(ctx context.Context, state *models.RoomState, expectedVersion int64) error

	Ping(ctx context.Context) error
	Close() error
}
