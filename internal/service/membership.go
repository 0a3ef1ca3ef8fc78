package service

import (
	"context"
	"fmt"

	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/notifier"
	"github.com/navikt/zseats/internal/utils"
)

func requireUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", models.ErrValidation)
	}
	return nil
}

// Join adds userID to an active room. Joining twice returns the existing
// membership and emits nothing.
func (s *Service) Join(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var joined models.Participant
	_, err := s.apply(ctx, roomID, func(st *models.RoomState, out *outcome) error {
		if !st.Room.Active {
			return fmt.Errorf("%w: room %s is closed", models.ErrNotFound, roomID)
		}
		if p := st.Participant(userID); p != nil {
			joined = *p
			return nil
		}

		joined = models.Participant{
			RoomID:    roomID,
			UserID:    userID,
			MicStatus: models.MicStatusNone,
			JoinedAt:  s.now(),
		}
		st.Participants = append(st.Participants, joined)

		out.emit(models.ChangeEvent{
			Kind:      models.EventParticipantJoined,
			UserID:    userID,
			ActorID:   userID,
			MicStatus: models.MicStatusNone,
			At:        joined.JoinedAt,
		})
		s.log.Info().Str("room_id", roomID).Str("user_id", utils.SanitizeLogString(userID)).Msg("participant joined")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &joined, nil
}

// Leave removes userID from the room whatever their mic status. A held
// seat is released in the same commit. Leaving a room one is not in does
// nothing.
func (s *Service) Leave(ctx context.Context, roomID, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	_, err := s.apply(ctx, roomID, func(st *models.RoomState, out *outcome) error {
		p, ok := st.RemoveParticipant(userID)
		if !ok {
			return nil
		}

		now := s.now()
		var requestID string
		if req := st.PendingRequest(userID); req != nil {
			req.Resolve(models.RequestStatusCancelled, now)
			requestID = req.ID
		}
		if p.HasSeat() {
			out.audio(roomID, userID, false, models.EventParticipantLeft)
		}

		out.emit(models.ChangeEvent{
			Kind:      models.EventParticipantLeft,
			UserID:    userID,
			ActorID:   userID,
			MicStatus: p.MicStatus,
			RequestID: requestID,
			At:        now,
		})
		s.log.Info().
			Str("room_id", roomID).
			Str("user_id", utils.SanitizeLogString(userID)).
			Str("mic_status", string(p.MicStatus)).
			Msg("participant left")
		return nil
	})
	return err
}

// ListParticipants returns the room's members in join order
func (s *Service) ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	st, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return st.Participants, nil
}

// Snapshot returns a consistent view of the room and the sequence number
// of the last event it includes
func (s *Service) Snapshot(ctx context.Context, roomID string) (models.RoomSnapshot, error) {
	st, err := s.load(ctx, roomID)
	if err != nil {
		return models.RoomSnapshot{}, err
	}
	return st.Snapshot(), nil
}

// Watch takes a snapshot and subscribes in one step under the room lock,
// so the subscription continues exactly after snapshot.Seq
func (s *Service) Watch(ctx context.Context, roomID string) (models.RoomSnapshot, *notifier.Subscription, error) {
	unlock := s.locks.lock(roomID)
	defer unlock()

	st, err := s.load(ctx, roomID)
	if err != nil {
		return models.RoomSnapshot{}, nil, err
	}
	if !st.Room.Active {
		return models.RoomSnapshot{}, nil, fmt.Errorf("%w: room %s is closed", models.ErrNotFound, roomID)
	}

	sub, err := s.notifier.Subscribe(ctx, roomID)
	if err != nil {
		return models.RoomSnapshot{}, nil, err
	}
	return st.Snapshot(), sub, nil
}

// Subscribe streams the room's events from now on. Cancelling ctx ends the
// subscription.
func (s *Service) Subscribe(ctx context.Context, roomID string) (*notifier.Subscription, error) {
	_, sub, err := s.Watch(ctx, roomID)
	return sub, err
}

// Unsubscribe ends a subscription without affecting the room or other subscribers
func (s *Service) Unsubscribe(sub *notifier.Subscription) {
	if sub != nil {
		sub.Close()
	}
}
