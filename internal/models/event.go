package models

import (
	"time"
)

// EventKind names a state change that subscribers are told about
type EventKind string

const (
	EventRoomClosed        EventKind = "room-closed"
	EventParticipantJoined EventKind = "participant-joined"
	EventParticipantLeft   EventKind = "participant-left"
	EventMicRequested      EventKind = "mic-requested"
	EventMicGranted        EventKind = "mic-granted"
	EventMicRevoked        EventKind = "mic-revoked"
	EventMicDenied         EventKind = "mic-denied"
	EventMicWithdrawn      EventKind = "mic-withdrawn"
)

// ChangeEvent is one committed state change in a room. Seq is assigned at
// commit time and increases by exactly one per event within a room.
type ChangeEvent struct {
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	MicStatus MicStatus `json:"mic_status,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
}
