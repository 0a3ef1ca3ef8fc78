package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/notifier"
	"github.com/navikt/zseats/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := service.GenerateRoomCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9A-Z]{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190, "codes should be random")
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t, service.Options{})
	ctx := context.Background()

	t.Run("valid room", func(t *testing.T) {
		room, err := f.svc.CreateRoom(ctx, "  Friday Standup  ", "alice")
		require.NoError(t, err)

		assert.NotEmpty(t, room.ID)
		assert.Equal(t, "Friday Standup", room.Name)
		assert.Equal(t, "alice", room.AdminUserID)
		assert.True(t, room.Active)
		assert.Regexp(t, `^[0-9A-Z]{6}$`, room.Code)

		resolved, err := f.svc.ResolveByCode(ctx, strings.ToLower(room.Code)+" ")
		require.NoError(t, err)
		assert.Equal(t, room.ID, resolved.ID)
	})

	tests := []struct {
		name  string
		room  string
		admin string
		field string
	}{
		{name: "empty name", room: "", admin: "alice", field: "name"},
		{name: "blank name", room: "   ", admin: "alice", field: "name"},
		{name: "long name", room: strings.Repeat("x", 101), admin: "alice", field: "name"},
		{name: "missing admin", room: "Room", admin: "", field: "admin_user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateRoom(ctx, tt.room, tt.admin)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("name of exactly 100 runes", func(t *testing.T) {
		_, err := f.svc.CreateRoom(ctx, strings.Repeat("ø", 100), "alice")
		assert.NoError(t, err)
	})
}

func TestCreateRoom_CodeCollision(t *testing.T) {
	t.Run("retries with a new code", func(t *testing.T) {
		codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
		f := newFixture(t, service.Options{CodeGenerator: func() (string, error) {
			code := codes[0]
			codes = codes[1:]
			return code, nil
		}})
		ctx := context.Background()

		first, err := f.svc.CreateRoom(ctx, "One", "alice")
		require.NoError(t, err)
		assert.Equal(t, "AAAAAA", first.Code)

		second, err := f.svc.CreateRoom(ctx, "Two", "bob")
		require.NoError(t, err)
		assert.Equal(t, "BBBBBB", second.Code)
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		calls := 0
		f := newFixture(t, service.Options{CodeGenerator: func() (string, error) {
			calls++
			return "SAME00", nil
		}})
		ctx := context.Background()

		_, err := f.svc.CreateRoom(ctx, "One", "alice")
		require.NoError(t, err)
		calls = 0

		_, err = f.svc.CreateRoom(ctx, "Two", "bob")
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.Equal(t, 5, calls)
	})
}

func TestResolveByCode(t *testing.T) {
	f := newFixture(t, service.Options{})
	ctx := context.Background()

	_, err := f.svc.ResolveByCode(ctx, "NOPE00")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.ResolveByCode(ctx, "  ")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetRoom(t *testing.T) {
	f := newFixture(t, service.Options{})
	ctx := context.Background()
	roomID := f.room(t)

	room, err := f.svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, "admin", room.AdminUserID)

	_, err = f.svc.GetRoom(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCloseRoom(t *testing.T) {
	f := newFixture(t, service.Options{})
	ctx := context.Background()
	roomID := f.room(t, "b", "c", "d")

	require.NoError(t, f.svc.GrantMic(ctx, "admin", "b", roomID))
	_, err := f.svc.RaiseHand(ctx, "c", roomID)
	require.NoError(t, err)

	room, err := f.svc.GetRoom(ctx, roomID)
	require.NoError(t, err)

	sub, err := f.svc.Subscribe(ctx, roomID)
	require.NoError(t, err)
	before := len(f.directives.all())

	t.Run("non-admin cannot close", func(t *testing.T) {
		err := f.svc.CloseRoom(ctx, roomID, "b")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
		quiet(t, sub)
	})

	t.Run("admin closes", func(t *testing.T) {
		require.NoError(t, f.svc.CloseRoom(ctx, roomID, "admin"))

		events := next(t, sub, 1)
		assert.Equal(t, models.EventRoomClosed, events[0].Kind)
		assert.Equal(t, "admin", events[0].ActorID)

		_, open := <-sub.Events()
		assert.False(t, open, "stream ends after room-closed")
		assert.ErrorIs(t, sub.Err(), notifier.ErrRoomClosed)

		directives := f.directives.all()[before:]
		require.Len(t, directives, 1)
		assert.Equal(t, "b", directives[0].UserID)
		assert.False(t, directives[0].Enabled)
	})

	t.Run("state after close", func(t *testing.T) {
		_, err := f.svc.ResolveByCode(ctx, room.Code)
		assert.ErrorIs(t, err, models.ErrNotFound)

		got, err := f.svc.GetRoom(ctx, roomID)
		require.NoError(t, err)
		assert.False(t, got.Active)

		participants, err := f.svc.ListParticipants(ctx, roomID)
		require.NoError(t, err)
		assert.Empty(t, participants)

		pending, err := f.svc.PendingRequests(ctx, roomID)
		require.NoError(t, err)
		assert.Empty(t, pending)

		_, err = f.svc.Join(ctx, roomID, "e")
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = f.svc.Subscribe(ctx, roomID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("closing again is a no-op", func(t *testing.T) {
		snap, err := f.svc.Snapshot(ctx, roomID)
		require.NoError(t, err)

		require.NoError(t, f.svc.CloseRoom(ctx, roomID, "admin"))

		again, err := f.svc.Snapshot(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, snap.Seq, again.Seq)
	})

	t.Run("unknown room", func(t *testing.T) {
		err := f.svc.CloseRoom(ctx, "missing", "admin")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
