package models

import (
	"time"
)

// CodeLength is the number of characters in a room join code
const CodeLength = 6

// Room represents a voice room with a single fixed admin
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	AdminUserID string    `json:"admin_user_id"`
	Code        string    `json:"room_code"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsAdmin returns true if userID is the room's admin
func (r *Room) IsAdmin(userID string) bool {
	return userID != "" && r.AdminUserID == userID
}

// maxResolvedRequests bounds how much resolved request history a room keeps
const maxResolvedRequests = 100

// RoomState is everything that belongs to one room. It is loaded and
// committed as a unit, and Version is the compare-and-swap token.
type RoomState struct {
	Room         Room          `json:"room"`
	Participants []Participant `json:"participants"`
	Requests     []MicRequest  `json:"requests"`
	Version      int64         `json:"version"`
	LastSeq      uint64        `json:"last_seq"`
}

// NewRoomState returns the empty state of a freshly created room
func NewRoomState(room Room) *RoomState {
	return &RoomState{
		Room:         room,
		Participants: []Participant{},
		Requests:     []MicRequest{},
	}
}

// Participant returns the member record for userID, or nil
func (s *RoomState) Participant(userID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// RemoveParticipant removes a member and reports whether it was present
func (s *RoomState) RemoveParticipant(userID string) (Participant, bool) {
	for i, p := range s.Participants {
		if p.UserID == userID {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return p, true
		}
	}
	return Participant{}, false
}

// GrantedCount returns the number of participants currently holding a seat
func (s *RoomState) GrantedCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.MicStatus == MicStatusGranted {
			n++
		}
	}
	return n
}

// PendingRequest returns the pending request for userID, or nil
func (s *RoomState) PendingRequest(userID string) *MicRequest {
	for i := range s.Requests {
		if s.Requests[i].UserID == userID && s.Requests[i].Status == RequestStatusPending {
			return &s.Requests[i]
		}
	}
	return nil
}

// LatestApproved returns the most recent approved request for userID, or nil
func (s *RoomState) LatestApproved(userID string) *MicRequest {
	for i := len(s.Requests) - 1; i >= 0; i-- {
		if s.Requests[i].UserID == userID && s.Requests[i].Status == RequestStatusApproved {
			return &s.Requests[i]
		}
	}
	return nil
}

// PendingRequests returns all pending requests in the order they were raised
func (s *RoomState) PendingRequests() []MicRequest {
	pending := make([]MicRequest, 0)
	for _, r := range s.Requests {
		if r.Status == RequestStatusPending {
			pending = append(pending, r)
		}
	}
	return pending
}

// TrimResolved drops the oldest resolved requests beyond the retention limit.
// Pending requests are always kept.
func (s *RoomState) TrimResolved() {
	resolved := 0
	for _, r := range s.Requests {
		if r.Status != RequestStatusPending {
			resolved++
		}
	}
	drop := resolved - maxResolvedRequests
	if drop <= 0 {
		return
	}

	kept := s.Requests[:0]
	for _, r := range s.Requests {
		if drop > 0 && r.Status != RequestStatusPending {
			drop--
			continue
		}
		kept = append(kept, r)
	}
	s.Requests = kept
}

// Clone returns a deep copy of the state
func (s *RoomState) Clone() *RoomState {
	c := *s
	c.Participants = append(make([]Participant, 0, len(s.Participants)), s.Participants...)
	c.Requests = make([]MicRequest, len(s.Requests))
	for i, r := range s.Requests {
		c.Requests[i] = r.clone()
	}
	return &c
}

// Snapshot returns the client-facing view of the state
func (s *RoomState) Snapshot() RoomSnapshot {
	c := s.Clone()
	return RoomSnapshot{
		Room:            c.Room,
		Participants:    c.Participants,
		PendingRequests: c.PendingRequests(),
		Seq:             c.LastSeq,
	}
}

// RoomSnapshot is a consistent read of a room together with the sequence
// number of the last event it reflects
type RoomSnapshot struct {
	Room            Room          `json:"room"`
	Participants    []Participant `json:"participants"`
	PendingRequests []MicRequest  `json:"pending_requests"`
	Seq             uint64        `json:"seq"`
}
