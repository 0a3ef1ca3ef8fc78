// Package repotest holds behaviour tests shared by every repository backend
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRoom returns an active room with a fresh ID and the given code
func NewRoom(code string) *models.Room {
	return &models.Room{
		ID:          uuid.NewString(),
		Name:        "Friday Standup",
		AdminUserID: "admin",
		Code:        code,
		Active:      true,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Run exercises the repository contract against a backend. newRepo must
// return an empty repository for every call.
func Run(t *testing.T, newRepo func(t *testing.T) repository.Repository) {
	ctx := context.Background()

	t.Run("create and get room", func(t *testing.T) {
		repo := newRepo(t)
		room := NewRoom("AAA111")
		require.NoError(t, repo.CreateRoom(ctx, room))

		got, err := repo.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room.ID, got.ID)
		assert.Equal(t, room.Name, got.Name)
		assert.Equal(t, room.AdminUserID, got.AdminUserID)
		assert.True(t, got.Active)

		byCode, err := repo.GetActiveRoomByCode(ctx, "AAA111")
		require.NoError(t, err)
		assert.Equal(t, room.ID, byCode.ID)

		state, err := repo.LoadRoomState(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), state.Version)
		assert.Equal(t, uint64(0), state.LastSeq)
		assert.Empty(t, state.Participants)
		assert.Empty(t, state.Requests)
	})

	t.Run("unknown ids and codes", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetRoom(ctx, "missing")
		assert.True(t, errors.Is(err, models.ErrNotFound))

		_, err = repo.GetActiveRoomByCode(ctx, "ZZZZZZ")
		assert.True(t, errors.Is(err, models.ErrNotFound))

		_, err = repo.LoadRoomState(ctx, "missing")
		assert.True(t, errors.Is(err, models.ErrNotFound))

		state := models.NewRoomState(*NewRoom("QQQ000"))
		state.Version = 1
		err = repo.SaveRoomState(ctx, state, 0)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})

	t.Run("duplicate active code", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateRoom(ctx, NewRoom("DUP001")))

		err := repo.CreateRoom(ctx, NewRoom("DUP001"))
		assert.True(t, errors.Is(err, models.ErrCodeTaken))
	})

	t.Run("save state round trip", func(t *testing.T) {
		repo := newRepo(t)
		room := NewRoom("SAVE01")
		require.NoError(t, repo.CreateRoom(ctx, room))

		state, err := repo.LoadRoomState(ctx, room.ID)
		require.NoError(t, err)

		base := time.Now().UTC().Truncate(time.Millisecond)
		resolved := base.Add(3 * time.Second)
		state.Participants = append(state.Participants,
			models.Participant{RoomID: room.ID, UserID: "b", MicStatus: models.MicStatusGranted, JoinedAt: base},
			models.Participant{RoomID: room.ID, UserID: "c", MicStatus: models.MicStatusRequested, JoinedAt: base.Add(time.Second)},
			models.Participant{RoomID: room.ID, UserID: "a", MicStatus: models.MicStatusNone, JoinedAt: base.Add(2 * time.Second)},
		)
		state.Requests = append(state.Requests,
			models.MicRequest{ID: uuid.NewString(), RoomID: room.ID, UserID: "b", Status: models.RequestStatusApproved, RequestedAt: base, ResolvedAt: &resolved},
			models.MicRequest{ID: uuid.NewString(), RoomID: room.ID, UserID: "c", Status: models.RequestStatusPending, RequestedAt: base.Add(time.Second)},
		)
		state.Version = 1
		state.LastSeq = 5
		require.NoError(t, repo.SaveRoomState(ctx, state, 0))

		loaded, err := repo.LoadRoomState(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), loaded.Version)
		assert.Equal(t, uint64(5), loaded.LastSeq)

		require.Len(t, loaded.Participants, 3)
		assert.Equal(t, "b", loaded.Participants[0].UserID, "participants keep join order")
		assert.Equal(t, "c", loaded.Participants[1].UserID)
		assert.Equal(t, "a", loaded.Participants[2].UserID)
		assert.Equal(t, models.MicStatusGranted, loaded.Participants[0].MicStatus)
		assert.True(t, base.Equal(loaded.Participants[0].JoinedAt))

		require.Len(t, loaded.Requests, 2)
		assert.Equal(t, state.Requests[0].ID, loaded.Requests[0].ID)
		require.NotNil(t, loaded.Requests[0].ResolvedAt)
		assert.True(t, resolved.Equal(*loaded.Requests[0].ResolvedAt))
		assert.Nil(t, loaded.Requests[1].ResolvedAt)
		assert.Equal(t, models.RequestStatusPending, loaded.Requests[1].Status)
	})

	t.Run("loaded state is a private copy", func(t *testing.T) {
		repo := newRepo(t)
		room := NewRoom("COPY01")
		require.NoError(t, repo.CreateRoom(ctx, room))

		state, err := repo.LoadRoomState(ctx, room.ID)
		require.NoError(t, err)
		state.Participants = append(state.Participants, models.Participant{RoomID: room.ID, UserID: "x"})

		again, err := repo.LoadRoomState(ctx, room.ID)
		require.NoError(t, err)
		assert.Empty(t, again.Participants)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		repo := newRepo(t)
		room := NewRoom("CAS001")
		require.NoError(t, repo.CreateRoom(ctx, room))

		first, err := repo.LoadRoomState(ctx, room.ID)
		require.NoError(t, err)
		second, err := repo.LoadRoomState(ctx, room.ID)
		require.NoError(t, err)

		first.Participants = append(first.Participants, models.Participant{RoomID: room.ID, UserID: "a", MicStatus: models.MicStatusNone, JoinedAt: time.Now()})
		first.Version = 1
		require.NoError(t, repo.SaveRoomState(ctx, first, 0))

		second.Participants = append(second.Participants, models.Participant{RoomID: room.ID, UserID: "b", MicStatus: models.MicStatusNone, JoinedAt: time.Now()})
		second.Version = 1
		err = repo.SaveRoomState(ctx, second, 0)
		assert.True(t, errors.Is(err, models.ErrConflict))

		loaded, err := repo.LoadRoomState(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, loaded.Participants, 1)
		assert.Equal(t, "a", loaded.Participants[0].UserID)
	})

	t.Run("closing releases the code", func(t *testing.T) {
		repo := newRepo(t)
		room := NewRoom("CLOSE1")
		require.NoError(t, repo.CreateRoom(ctx, room))

		state, err := repo.LoadRoomState(ctx, room.ID)
		require.NoError(t, err)
		state.Room.Active = false
		state.Version = 1
		require.NoError(t, repo.SaveRoomState(ctx, state, 0))

		_, err = repo.GetActiveRoomByCode(ctx, "CLOSE1")
		assert.True(t, errors.Is(err, models.ErrNotFound))

		got, err := repo.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)

		reused := NewRoom("CLOSE1")
		require.NoError(t, repo.CreateRoom(ctx, reused))
		byCode, err := repo.GetActiveRoomByCode(ctx, "CLOSE1")
		require.NoError(t, err)
		assert.Equal(t, reused.ID, byCode.ID)
	})

	t.Run("ping", func(t *testing.T) {
		repo := newRepo(t)
		assert.NoError(t, repo.Ping(ctx))
	})
}
