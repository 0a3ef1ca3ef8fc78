// Package projection folds a room's event stream into a local read model.
// The view is always derived from the service and never written back.
package projection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/navikt/zseats/internal/models"
	"github.com/samber/lo"
)

// ErrGap means an event was missed and the view must be rebuilt from a new snapshot
var ErrGap = errors.New("event sequence gap")

// RoomView is a client-side copy of one room, safe for concurrent use
type RoomView struct {
	mu     sync.RWMutex
	state  *models.RoomState
	closed bool
}

// FromSnapshot starts a view at snap.Seq
func FromSnapshot(snap models.RoomSnapshot) *RoomView {
	st := models.NewRoomState(snap.Room)
	st.Participants = append(st.Participants, snap.Participants...)
	st.Requests = append(st.Requests, snap.PendingRequests...)
	st.LastSeq = snap.Seq
	return &RoomView{state: st, closed: !snap.Room.Active}
}

// Seq returns the sequence number of the last event folded in
func (v *RoomView) Seq() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.LastSeq
}

// Closed reports whether the room has been closed
func (v *RoomView) Closed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

// Apply folds one event into the view. Events at or below the current
// sequence were already seen and are ignored.
func (v *RoomView) Apply(ev models.ChangeEvent) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := v.state
	if ev.Seq <= st.LastSeq {
		return nil
	}
	if ev.Seq != st.LastSeq+1 {
		return fmt.Errorf("%w: have %d, got %d", ErrGap, st.LastSeq, ev.Seq)
	}

	switch ev.Kind {
	case models.EventParticipantJoined:
		if st.Participant(ev.UserID) == nil {
			st.Participants = append(st.Participants, models.Participant{
				RoomID:    ev.RoomID,
				UserID:    ev.UserID,
				MicStatus: models.MicStatusNone,
				JoinedAt:  ev.At,
			})
		}

	case models.EventParticipantLeft:
		st.RemoveParticipant(ev.UserID)
		v.dropRequest(ev.UserID)

	case models.EventMicRequested:
		v.setStatus(ev.UserID, models.MicStatusRequested)
		if st.PendingRequest(ev.UserID) == nil {
			st.Requests = append(st.Requests, models.MicRequest{
				ID:          ev.RequestID,
				RoomID:      ev.RoomID,
				UserID:      ev.UserID,
				Status:      models.RequestStatusPending,
				RequestedAt: ev.At,
			})
		}

	case models.EventMicGranted:
		v.setStatus(ev.UserID, models.MicStatusGranted)
		v.dropRequest(ev.UserID)

	case models.EventMicRevoked:
		v.setStatus(ev.UserID, models.MicStatusNone)

	case models.EventMicDenied, models.EventMicWithdrawn:
		v.setStatus(ev.UserID, ev.MicStatus)
		v.dropRequest(ev.UserID)

	case models.EventRoomClosed:
		st.Room.Active = false
		st.Participants = st.Participants[:0]
		st.Requests = st.Requests[:0]
		v.closed = true
	}

	st.LastSeq = ev.Seq
	return nil
}

func (v *RoomView) setStatus(userID string, status models.MicStatus) {
	if p := v.state.Participant(userID); p != nil && status != "" {
		p.MicStatus = status
	}
}

func (v *RoomView) dropRequest(userID string) {
	v.state.Requests = lo.Reject(v.state.Requests, func(r models.MicRequest, _ int) bool {
		return r.UserID == userID
	})
}

// Snapshot returns the view in the same shape the service serves
func (v *RoomView) Snapshot() models.RoomSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.Snapshot()
}

// Participants returns the members in join order
func (v *RoomView) Participants() []models.Participant {
	return v.Snapshot().Participants
}

// PendingRequests returns the open requests in the order they were raised
func (v *RoomView) PendingRequests() []models.MicRequest {
	return v.Snapshot().PendingRequests
}

// GrantedCount returns the number of current speakers
func (v *RoomView) GrantedCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return lo.CountBy(v.state.Participants, func(p models.Participant) bool {
		return p.MicStatus == models.MicStatusGranted
	})
}
