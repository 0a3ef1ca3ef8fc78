package notifier_test

import (
	"context"
	"testing"
	"time"

	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/notifier"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(roomID string, seq uint64) models.ChangeEvent {
	return models.ChangeEvent{Seq: seq, Kind: models.EventParticipantJoined, RoomID: roomID, UserID: "u", At: time.Now()}
}

// drain reads until the stream closes
func drain(t *testing.T, sub *notifier.Subscription) []uint64 {
	t.Helper()
	var seqs []uint64
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return seqs
			}
			seqs = append(seqs, ev.Seq)
		case <-timeout:
			t.Fatal("subscription did not close")
			return nil
		}
	}
}

func TestPublishOrderAcrossSubscribers(t *testing.T) {
	hub := notifier.NewHub(16, zerolog.Nop())
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, "room1")
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx, "room1")
	require.NoError(t, err)

	hub.Publish("room1", event("room1", 1), event("room1", 2))
	hub.Publish("room1", event("room1", 3))
	hub.CloseRoom("room1")

	assert.Equal(t, []uint64{1, 2, 3}, drain(t, a))
	assert.Equal(t, []uint64{1, 2, 3}, drain(t, b))
	assert.ErrorIs(t, a.Err(), notifier.ErrRoomClosed)
	assert.ErrorIs(t, b.Err(), notifier.ErrRoomClosed)
}

func TestRoomsAreIndependent(t *testing.T) {
	hub := notifier.NewHub(4, zerolog.Nop())
	ctx := context.Background()

	one, err := hub.Subscribe(ctx, "room1")
	require.NoError(t, err)
	two, err := hub.Subscribe(ctx, "room2")
	require.NoError(t, err)

	hub.Publish("room1", event("room1", 1))
	hub.CloseRoom("room1")

	assert.Equal(t, []uint64{1}, drain(t, one))
	assert.Equal(t, 1, hub.SubscriberCount("room2"))

	select {
	case ev := <-two.Events():
		t.Fatalf("room2 received room1 event %d", ev.Seq)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	hub := notifier.NewHub(4, zerolog.Nop())
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, "room1")
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx, "room1")
	require.NoError(t, err)

	a.Close()
	a.Close()

	hub.Publish("room1", event("room1", 1))

	assert.Empty(t, drain(t, a))
	assert.NoError(t, a.Err())
	assert.Equal(t, 1, hub.SubscriberCount("room1"))

	ev := <-b.Events()
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	hub := notifier.NewHub(2, zerolog.Nop())
	ctx := context.Background()

	slow, err := hub.Subscribe(ctx, "room1")
	require.NoError(t, err)
	fast, err := hub.Subscribe(ctx, "room1")
	require.NoError(t, err)

	received := make(chan []uint64)
	go func() {
		var seqs []uint64
		for ev := range fast.Events() {
			seqs = append(seqs, ev.Seq)
			if len(seqs) == 5 {
				break
			}
		}
		received <- seqs
	}()

	for seq := uint64(1); seq <= 5; seq++ {
		hub.Publish("room1", event("room1", seq))
		// Give the fast consumer time to keep its buffer empty
		time.Sleep(10 * time.Millisecond)
	}

	// The slow consumer keeps the prefix that fit, then sees the eviction
	assert.Equal(t, []uint64{1, 2}, drain(t, slow))
	assert.ErrorIs(t, slow.Err(), notifier.ErrSlowSubscriber)

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, <-received)
	assert.Equal(t, 1, hub.SubscriberCount("room1"))
}

func TestContextCancelUnsubscribes(t *testing.T) {
	hub := notifier.NewHub(4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := hub.Subscribe(ctx, "room1")
	require.NoError(t, err)
	require.Equal(t, 1, hub.SubscriberCount("room1"))

	cancel()

	assert.Empty(t, drain(t, sub))
	assert.Eventually(t, func() bool { return hub.SubscriberCount("room1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestShutdown(t *testing.T) {
	hub := notifier.NewHub(4, zerolog.Nop())
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "room1")
	require.NoError(t, err)

	hub.Shutdown()

	assert.Empty(t, drain(t, sub))
	assert.ErrorIs(t, sub.Err(), notifier.ErrShutdown)

	_, err = hub.Subscribe(ctx, "room1")
	assert.ErrorIs(t, err, notifier.ErrShutdown)
}
