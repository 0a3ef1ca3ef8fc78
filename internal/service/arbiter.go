package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/utils"
)

func notMember(roomID, userID string) error {
	return fmt.Errorf("%w: user %s is not in room %s", models.ErrNotFound, utils.SanitizeLogString(userID), roomID)
}

// RaiseHand asks for a speaking seat. A participant who already asked gets
// the pending request back. One who already speaks gets the request that
// was approved, or a synthesized approved request without an ID if the
// seat was granted directly.
func (s *Service) RaiseHand(ctx context.Context, userID, roomID string) (*models.MicRequest, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var result models.MicRequest
	_, err := s.apply(ctx, roomID, func(st *models.RoomState, out *outcome) error {
		p := st.Participant(userID)
		if p == nil {
			return notMember(roomID, userID)
		}

		if p.MicStatus == models.MicStatusGranted {
			if req := st.LatestApproved(userID); req != nil {
				result = *req
				return nil
			}
			result = models.MicRequest{
				RoomID:      roomID,
				UserID:      userID,
				Status:      models.RequestStatusApproved,
				RequestedAt: p.JoinedAt,
			}
			return nil
		}

		if req := st.PendingRequest(userID); req != nil {
			result = *req
			return nil
		}

		now := s.now()
		req := models.MicRequest{
			ID:          uuid.NewString(),
			RoomID:      roomID,
			UserID:      userID,
			Status:      models.RequestStatusPending,
			RequestedAt: now,
		}
		st.Requests = append(st.Requests, req)
		p.MicStatus = models.MicStatusRequested
		result = req

		out.emit(models.ChangeEvent{
			Kind:      models.EventMicRequested,
			UserID:    userID,
			ActorID:   userID,
			MicStatus: models.MicStatusRequested,
			RequestID: req.ID,
			At:        now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// LowerHand withdraws the caller's pending request. It does nothing unless
// the caller is waiting for a seat.
func (s *Service) LowerHand(ctx context.Context, userID, roomID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	_, err := s.apply(ctx, roomID, func(st *models.RoomState, out *outcome) error {
		p := st.Participant(userID)
		if p == nil {
			return notMember(roomID, userID)
		}
		if p.MicStatus != models.MicStatusRequested {
			return nil
		}

		now := s.now()
		var requestID string
		if req := st.PendingRequest(userID); req != nil {
			req.Resolve(models.RequestStatusCancelled, now)
			requestID = req.ID
		}
		p.MicStatus = models.MicStatusNone

		out.emit(models.ChangeEvent{
			Kind:      models.EventMicWithdrawn,
			UserID:    userID,
			ActorID:   userID,
			MicStatus: models.MicStatusNone,
			RequestID: requestID,
			At:        now,
		})
		return nil
	})
	return err
}

// GrantMic gives userID a speaking seat. The capacity check and the grant
// happen in one commit, so no interleaving of grants can exceed the seat
// capacity. Granting to a current speaker does nothing.
func (s *Service) GrantMic(ctx context.Context, adminID, userID, roomID string) error {
	_, err := s.apply(ctx, roomID, func(st *models.RoomState, out *outcome) error {
		if err := s.requireAdmin(&st.Room, adminID, "grant mic"); err != nil {
			return err
		}
		p := st.Participant(userID)
		if p == nil {
			return notMember(roomID, userID)
		}
		if p.HasSeat() {
			return nil
		}
		if granted := st.GrantedCount(); granted >= s.capacity {
			return fmt.Errorf("%w: room %s already has %d of %d speakers", models.ErrCapacity, roomID, granted, s.capacity)
		}

		now := s.now()
		var requestID string
		if req := st.PendingRequest(userID); req != nil {
			req.Resolve(models.RequestStatusApproved, now)
			requestID = req.ID
		}
		p.MicStatus = models.MicStatusGranted
		out.audio(roomID, userID, true, models.EventMicGranted)

		out.emit(models.ChangeEvent{
			Kind:      models.EventMicGranted,
			UserID:    userID,
			ActorID:   adminID,
			MicStatus: models.MicStatusGranted,
			RequestID: requestID,
			At:        now,
		})
		s.log.Info().Str("room_id", roomID).Str("user_id", utils.SanitizeLogString(userID)).
			Int("speakers", st.GrantedCount()).Msg("mic granted")
		return nil
	})
	return err
}

// RevokeMic takes a speaking seat away. The participant may ask again at
// once. Revoking from someone without a seat does nothing.
func (s *Service) RevokeMic(ctx context.Context, adminID, userID, roomID string) error {
	_, err := s.apply(ctx, roomID, func(st *models.RoomState, out *outcome) error {
		if err := s.requireAdmin(&st.Room, adminID, "revoke mic"); err != nil {
			return err
		}
		p := st.Participant(userID)
		if p == nil {
			return notMember(roomID, userID)
		}
		if !p.HasSeat() {
			return nil
		}

		p.MicStatus = models.MicStatusNone
		out.audio(roomID, userID, false, models.EventMicRevoked)

		out.emit(models.ChangeEvent{
			Kind:      models.EventMicRevoked,
			UserID:    userID,
			ActorID:   adminID,
			MicStatus: models.MicStatusNone,
			At:        s.now(),
		})
		s.log.Info().Str("room_id", roomID).Str("user_id", utils.SanitizeLogString(userID)).Msg("mic revoked")
		return nil
	})
	return err
}

// DenyRequest rejects userID's pending request. Without one it does nothing.
func (s *Service) DenyRequest(ctx context.Context, adminID, userID, roomID string) error {
	_, err := s.apply(ctx, roomID, func(st *models.RoomState, out *outcome) error {
		if err := s.requireAdmin(&st.Room, adminID, "deny request"); err != nil {
			return err
		}
		p := st.Participant(userID)
		if p == nil {
			return notMember(roomID, userID)
		}
		req := st.PendingRequest(userID)
		if req == nil {
			return nil
		}

		now := s.now()
		req.Resolve(models.RequestStatusDenied, now)
		if p.MicStatus == models.MicStatusRequested {
			p.MicStatus = models.MicStatusNone
		}

		out.emit(models.ChangeEvent{
			Kind:      models.EventMicDenied,
			UserID:    userID,
			ActorID:   adminID,
			MicStatus: p.MicStatus,
			RequestID: req.ID,
			At:        now,
		})
		return nil
	})
	return err
}

// PendingRequests returns the room's open requests, oldest first. The order
// is advisory; requests are never granted automatically.
func (s *Service) PendingRequests(ctx context.Context, roomID string) ([]models.MicRequest, error) {
	st, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}

	pending := st.PendingRequests()
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].RequestedAt.Before(pending[j].RequestedAt)
	})
	return pending, nil
}
