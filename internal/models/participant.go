package models

import (
	"time"
)

// MicStatus is a participant's position in the speaking-seat state machine
type MicStatus string

const (
	MicStatusNone      MicStatus = "none"
	MicStatusRequested MicStatus = "requested"
	MicStatusGranted   MicStatus = "granted"
)

// Participant is a user's membership in a room
type Participant struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	MicStatus MicStatus `json:"mic_status"`
	JoinedAt  time.Time `json:"joined_at"`
}

// HasSeat returns true if the participant currently holds a speaking seat
func (p *Participant) HasSeat() bool {
	return p.MicStatus == MicStatusGranted
}

// RequestStatus is the lifecycle state of a mic request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
	// RequestStatusCancelled covers withdrawal, leaving and room close
	RequestStatusCancelled RequestStatus = "cancelled"
)

// MicRequest is a participant's request to speak
type MicRequest struct {
	ID          string        `json:"id"`
	RoomID      string        `json:"room_id"`
	UserID      string        `json:"user_id"`
	Status      RequestStatus `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// Resolve moves the request out of pending
func (r *MicRequest) Resolve(status RequestStatus, at time.Time) {
	r.Status = status
	r.ResolvedAt = &at
}

func (r MicRequest) clone() MicRequest {
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		r.ResolvedAt = &at
	}
	return r
}
