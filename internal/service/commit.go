package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/voice"
)

// outcome collects what a mutation produced. A mutation that emits no
// events is a no-op and nothing is written.
type outcome struct {
	events     []models.ChangeEvent
	directives []voice.Directive
	closeRoom  bool
}

func (o *outcome) emit(ev models.ChangeEvent) {
	o.events = append(o.events, ev)
}

func (o *outcome) audio(roomID, userID string, enabled bool, reason models.EventKind) {
	o.directives = append(o.directives, voice.Directive{
		RoomID:  roomID,
		UserID:  userID,
		Enabled: enabled,
		Reason:  string(reason),
	})
}

// mutation inspects and changes a freshly loaded room state. Returning an
// error aborts the commit and leaves the room untouched.
type mutation func(st *models.RoomState, out *outcome) error

// apply runs fn against the room's current state and commits the result.
// The room lock is held from load until the events are published, so
// subscribers observe events in commit order. A version conflict, which
// only happens when another process shares the store, reloads the state
// and runs fn again.
func (s *Service) apply(ctx context.Context, roomID string, fn mutation) (*models.RoomState, error) {
	unlock := s.locks.lock(roomID)
	defer unlock()

	var (
		committed *models.RoomState
		out       *outcome
		attempt   int
	)

	op := func() error {
		attempt++

		st, err := s.repo.LoadRoomState(ctx, roomID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: room %s", models.ErrNotFound, roomID))
			}
			return backoff.Permanent(err)
		}

		out = &outcome{}
		if err := fn(st, out); err != nil {
			return backoff.Permanent(err)
		}
		if len(out.events) == 0 {
			committed = st
			return nil
		}

		expected := st.Version
		now := s.now()
		for i := range out.events {
			st.LastSeq++
			out.events[i].Seq = st.LastSeq
			out.events[i].RoomID = roomID
			if out.events[i].At.IsZero() {
				out.events[i].At = now
			}
		}
		st.Version = expected + 1
		st.TrimResolved()

		if err := s.repo.SaveRoomState(ctx, st, expected); err != nil {
			if errors.Is(err, models.ErrConflict) {
				s.log.Debug().Err(err).Str("room_id", roomID).Int("attempt", attempt).Msg("commit conflict, retrying")
				return err
			}
			return backoff.Permanent(err)
		}

		committed = st
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(s.commitBackOff(), ctx)); err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.log.Warn().Str("room_id", roomID).Int("attempts", attempt).Msg("giving up on contended room")
			return nil, fmt.Errorf("%w: room %s is busy, retry later", models.ErrConflict, roomID)
		}
		return nil, err
	}

	if len(out.events) > 0 {
		for _, ev := range out.events {
			s.log.Debug().Str("room_id", roomID).Uint64("seq", ev.Seq).Str("kind", string(ev.Kind)).Msg("committed")
		}
		s.notifier.Publish(roomID, out.events...)
		if len(out.directives) > 0 {
			s.directives.Enqueue(out.directives...)
		}
		if out.closeRoom {
			s.notifier.CloseRoom(roomID)
		}
	}

	return committed, nil
}

// commitBackOff allows s.attempts tries in total with short jittered waits
func (s *Service) commitBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(s.attempts-1))
}

// load reads a room's state without taking its lock
func (s *Service) load(ctx context.Context, roomID string) (*models.RoomState, error) {
	st, err := s.repo.LoadRoomState(ctx, roomID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: room %s", models.ErrNotFound, roomID)
		}
		return nil, err
	}
	return st, nil
}
