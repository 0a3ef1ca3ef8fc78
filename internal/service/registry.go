package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/utils"
	"github.com/samber/lo"
)

const (
	codeAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxCodeAttempts = 5
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type createRoomInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	AdminUserID string `json:"admin_user_id" validate:"required,max=200"`
}

// validationError turns validator output into a models.ErrValidation
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		if fe.Param() != "" {
			return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s is %s", fe.Field(), fe.Tag())
	})
	return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(fields, "; "))
}

// GenerateRoomCode returns a random six character code of digits and
// upper case letters
func GenerateRoomCode() (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	code := make([]byte, models.CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// NormalizeCode trims and upper-cases a user supplied room code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom creates an active room administered by adminUserID
func (s *Service) CreateRoom(ctx context.Context, name, adminUserID string) (*models.Room, error) {
	in := createRoomInput{Name: strings.TrimSpace(name), AdminUserID: adminUserID}
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return nil, err
		}

		room := &models.Room{
			ID:          uuid.NewString(),
			Name:        in.Name,
			AdminUserID: in.AdminUserID,
			Code:        code,
			Active:      true,
			CreatedAt:   s.now(),
		}

		err = s.repo.CreateRoom(ctx, room)
		if err == nil {
			s.log.Info().
				Str("room_id", room.ID).
				Str("code", room.Code).
				Str("name", utils.SanitizeLogString(room.Name)).
				Str("admin", utils.SanitizeLogString(room.AdminUserID)).
				Msg("room created")
			return room, nil
		}
		if !errors.Is(err, models.ErrCodeTaken) {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		s.log.Debug().Str("code", code).Int("attempt", attempt).Msg("room code collision")
	}

	return nil, fmt.Errorf("%w: could not allocate a unique room code", models.ErrConflict)
}

// ResolveByCode returns the active room that owns code
func (s *Service) ResolveByCode(ctx context.Context, code string) (*models.Room, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: room code is required", models.ErrValidation)
	}

	room, err := s.repo.GetActiveRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: no active room with code %s", models.ErrNotFound, utils.SanitizeLogString(code))
		}
		return nil, err
	}
	return room, nil
}

// GetRoom returns a room by ID, active or not
func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: room %s", models.ErrNotFound, roomID)
		}
		return nil, err
	}
	return room, nil
}

// CloseRoom deactivates a room. Every seat is released, every participant
// removed and every pending request cancelled in one commit that emits a
// single room-closed event. Closing an inactive room does nothing.
func (s *Service) CloseRoom(ctx context.Context, roomID, callerID string) error {
	_, err := s.apply(ctx, roomID, func(st *models.RoomState, out *outcome) error {
		if err := s.requireAdmin(&st.Room, callerID, "close room"); err != nil {
			return err
		}
		if !st.Room.Active {
			return nil
		}

		now := s.now()
		for _, p := range st.Participants {
			if p.HasSeat() {
				out.audio(roomID, p.UserID, false, models.EventRoomClosed)
			}
		}
		for i := range st.Requests {
			if st.Requests[i].Status == models.RequestStatusPending {
				st.Requests[i].Resolve(models.RequestStatusCancelled, now)
			}
		}
		evicted := len(st.Participants)
		st.Participants = []models.Participant{}
		st.Room.Active = false

		out.emit(models.ChangeEvent{Kind: models.EventRoomClosed, ActorID: callerID, At: now})
		out.closeRoom = true

		s.log.Info().Str("room_id", roomID).Int("evicted", evicted).Msg("room closed")
		return nil
	})
	return err
}
