package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/navikt/zseats/internal/utils"
	"github.com/navikt/zseats/internal/web"
	"github.com/rs/zerolog"
)

// CreateRoomRequest is the body of POST /api/rooms
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// RoomHandler handles HTTP requests for rooms, membership and seats
type RoomHandler struct {
	svc RoomServicer
	log zerolog.Logger
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(svc RoomServicer, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		svc: svc,
		log: utils.Module(logger, "api.rooms"),
	}
}

// caller returns the identity resolved by the identity middleware
func (h *RoomHandler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := web.UserIDFromContext(r.Context())
	if !ok {
		web.Error(w, http.StatusUnauthorized, web.CodeUnauthenticated, "caller identity required")
	}
	return userID, ok
}

func (h *RoomHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	web.ServiceError(w, h.log.With().Str("path", r.URL.Path).Logger(), err)
}

// createRoom handles POST /api/rooms. The caller becomes the room's admin.
func (h *RoomHandler) createRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room body")
		web.Error(w, http.StatusBadRequest, web.CodeValidation, "invalid request body")
		return
	}

	room, err := h.svc.CreateRoom(r.Context(), req.Name, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, room)
}

// resolveCode handles GET /api/rooms/code/{code}
func (h *RoomHandler) resolveCode(w http.ResponseWriter, r *http.Request) {
	room, err := h.svc.ResolveByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, room)
}

// getRoom handles GET /api/rooms/{roomID}
func (h *RoomHandler) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.svc.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, room)
}

// closeRoom handles POST /api/rooms/{roomID}/close
func (h *RoomHandler) closeRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.CloseRoom(r.Context(), chi.URLParam(r, "roomID"), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// join handles POST /api/rooms/{roomID}/join
func (h *RoomHandler) join(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	participant, err := h.svc.Join(r.Context(), chi.URLParam(r, "roomID"), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, participant)
}

// leave handles POST /api/rooms/{roomID}/leave
func (h *RoomHandler) leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.Leave(r.Context(), chi.URLParam(r, "roomID"), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// participants handles GET /api/rooms/{roomID}/participants
func (h *RoomHandler) participants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.svc.ListParticipants(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, participants)
}

// snapshot handles GET /api/rooms/{roomID}/snapshot
func (h *RoomHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, snap)
}

// pendingRequests handles GET /api/rooms/{roomID}/requests
func (h *RoomHandler) pendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.svc.PendingRequests(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, requests)
}

// raiseHand handles POST /api/rooms/{roomID}/hand
func (h *RoomHandler) raiseHand(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, err := h.svc.RaiseHand(r.Context(), userID, chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, req)
}

// lowerHand handles DELETE /api/rooms/{roomID}/hand
func (h *RoomHandler) lowerHand(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.LowerHand(r.Context(), userID, chi.URLParam(r, "roomID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type seatAction func(h *RoomHandler, r *http.Request, adminID, userID, roomID string) error

// seat builds the handlers for POST /api/rooms/{roomID}/seats/{userID}/...
func (h *RoomHandler) seat(action seatAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := h.caller(w, r)
		if !ok {
			return
		}
		err := action(h, r, adminID, chi.URLParam(r, "userID"), chi.URLParam(r, "roomID"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func grant(h *RoomHandler, r *http.Request, adminID, userID, roomID string) error {
	return h.svc.GrantMic(r.Context(), adminID, userID, roomID)
}

func revoke(h *RoomHandler, r *http.Request, adminID, userID, roomID string) error {
	return h.svc.RevokeMic(r.Context(), adminID, userID, roomID)
}

func deny(h *RoomHandler, r *http.Request, adminID, userID, roomID string) error {
	return h.svc.DenyRequest(r.Context(), adminID, userID, roomID)
}
