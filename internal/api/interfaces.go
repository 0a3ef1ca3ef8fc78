package api

import (
	"context"

	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/web"
)

// RoomServicer defines the room operations needed by API handlers
type RoomServicer interface {
	web.RoomWatcher

	// Registry
	CreateRoom(ctx context.Context, name, adminUserID string) (*models.Room, error)
	ResolveByCode(ctx context.Context, code string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	CloseRoom(ctx context.Context, roomID, callerID string) error

	// Membership
	Join(ctx context.Context, roomID, userID string) (*models.Participant, error)
	Leave(ctx context.Context, roomID, userID string) error
	ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error)
	Snapshot(ctx context.Context, roomID string) (models.RoomSnapshot, error)

	// Seats
	RaiseHand(ctx context.Context, userID, roomID string) (*models.MicRequest, error)
	LowerHand(ctx context.Context, userID, roomID string) error
	GrantMic(ctx context.Context, adminID, userID, roomID string) error
	RevokeMic(ctx context.Context, adminID, userID, roomID string) error
	DenyRequest(ctx context.Context, adminID, userID, roomID string) error
	PendingRequests(ctx context.Context, roomID string) ([]models.MicRequest, error)

	Ping(ctx context.Context) error
}
