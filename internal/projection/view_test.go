package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/notifier"
	"github.com/navikt/zseats/internal/projection"
	"github.com/navikt/zseats/internal/repository/memory"
	"github.com/navikt/zseats/internal/service"
	"github.com/navikt/zseats/internal/voice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discard struct{}

func (discard) Enqueue(...voice.Directive) {}

func newService(t *testing.T) *service.Service {
	t.Helper()
	hub := notifier.NewHub(128, zerolog.Nop())
	t.Cleanup(hub.Shutdown)
	return service.New(memory.NewRepository(), hub, discard{}, service.Options{Logger: zerolog.Nop()})
}

func drain(t *testing.T, sub *notifier.Subscription, n int) []models.ChangeEvent {
	t.Helper()
	var events []models.ChangeEvent
	for len(events) < n {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "stream ended early: %v", sub.Err())
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d of %d events", len(events), n)
		}
	}
	return events
}

func TestViewFollowsService(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "Room", "admin")
	require.NoError(t, err)
	_, err = svc.Join(ctx, room.ID, "a")
	require.NoError(t, err)

	snap, sub, err := svc.Watch(ctx, room.ID)
	require.NoError(t, err)
	defer svc.Unsubscribe(sub)
	view := projection.FromSnapshot(snap)

	steps := []func() error{
		func() error { _, err := svc.Join(ctx, room.ID, "b"); return err },
		func() error { _, err := svc.Join(ctx, room.ID, "c"); return err },
		func() error { _, err := svc.RaiseHand(ctx, "a", room.ID); return err },
		func() error { _, err := svc.RaiseHand(ctx, "b", room.ID); return err },
		func() error { _, err := svc.RaiseHand(ctx, "c", room.ID); return err },
		func() error { return svc.GrantMic(ctx, "admin", "a", room.ID) },
		func() error { return svc.DenyRequest(ctx, "admin", "b", room.ID) },
		func() error { return svc.LowerHand(ctx, "c", room.ID) },
		func() error { return svc.GrantMic(ctx, "admin", "c", room.ID) },
		func() error { return svc.RevokeMic(ctx, "admin", "a", room.ID) },
		func() error { return svc.Leave(ctx, room.ID, "c") },
	}
	for _, step := range steps {
		require.NoError(t, step())
	}

	for _, ev := range drain(t, sub, len(steps)) {
		require.NoError(t, view.Apply(ev))
	}

	want, err := svc.Snapshot(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, want, view.Snapshot())
	assert.Equal(t, 0, view.GrantedCount())
	assert.Equal(t, []string{"a", "b"}, []string{view.Participants()[0].UserID, view.Participants()[1].UserID})
	assert.Empty(t, view.PendingRequests())
}

func TestApplyIgnoresDuplicates(t *testing.T) {
	view := projection.FromSnapshot(models.RoomSnapshot{
		Room: models.Room{ID: "r", Active: true},
		Seq:  5,
	})

	require.NoError(t, view.Apply(models.ChangeEvent{Seq: 6, Kind: models.EventParticipantJoined, RoomID: "r", UserID: "u"}))
	require.NoError(t, view.Apply(models.ChangeEvent{Seq: 6, Kind: models.EventParticipantJoined, RoomID: "r", UserID: "u"}))
	require.NoError(t, view.Apply(models.ChangeEvent{Seq: 3, Kind: models.EventParticipantLeft, RoomID: "r", UserID: "u"}))

	assert.Equal(t, uint64(6), view.Seq())
	assert.Len(t, view.Participants(), 1)
}

func TestApplyDetectsGap(t *testing.T) {
	view := projection.FromSnapshot(models.RoomSnapshot{
		Room: models.Room{ID: "r", Active: true},
		Seq:  1,
	})

	err := view.Apply(models.ChangeEvent{Seq: 3, Kind: models.EventParticipantJoined, RoomID: "r", UserID: "u"})
	assert.ErrorIs(t, err, projection.ErrGap)
	assert.Equal(t, uint64(1), view.Seq())
	assert.Empty(t, view.Participants())
}

func TestApplyRoomClosed(t *testing.T) {
	view := projection.FromSnapshot(models.RoomSnapshot{
		Room: models.Room{ID: "r", Active: true},
		Participants: []models.Participant{
			{RoomID: "r", UserID: "a", MicStatus: models.MicStatusGranted},
			{RoomID: "r", UserID: "b", MicStatus: models.MicStatusRequested},
		},
		PendingRequests: []models.MicRequest{
			{ID: "q1", RoomID: "r", UserID: "b", Status: models.RequestStatusPending},
		},
		Seq: 10,
	})
	assert.Equal(t, 1, view.GrantedCount())
	assert.False(t, view.Closed())

	require.NoError(t, view.Apply(models.ChangeEvent{Seq: 11, Kind: models.EventRoomClosed, RoomID: "r"}))

	assert.True(t, view.Closed())
	assert.Empty(t, view.Participants())
	assert.Empty(t, view.PendingRequests())
	assert.False(t, view.Snapshot().Room.Active)
}
