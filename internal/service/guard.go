package service

import (
	"fmt"

	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/utils"
)

// IsAdmin reports whether callerID may manage room
func IsAdmin(room *models.Room, callerID string) bool {
	return room.IsAdmin(callerID)
}

func (s *Service) requireAdmin(room *models.Room, callerID, action string) error {
	if IsAdmin(room, callerID) {
		return nil
	}
	s.log.Warn().
		Str("room_id", room.ID).
		Str("caller", utils.SanitizeLogString(callerID)).
		Str("action", action).
		Msg("rejected non-admin")
	return fmt.Errorf("%w: %s requires the admin of room %s", models.ErrUnauthorized, action, room.ID)
}
