package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/navikt/zseats/internal/notifier"
	"github.com/navikt/zseats/internal/repository/memory"
	"github.com/navikt/zseats/internal/voice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomLocksSerializeSameRoom(t *testing.T) {
	l := newRoomLocks()

	unlock := l.lock("r1")
	acquired := make(chan struct{})
	go func() {
		release := l.lock("r1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	// other rooms are unaffected
	other := l.lock("r2")
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}

	assert.Eventually(t, func() bool { return l.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRoomLocksAreReleased(t *testing.T) {
	l := newRoomLocks()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("room")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.size())
}

type nopQueue struct{}

func (nopQueue) Enqueue(...voice.Directive) {}

func TestServiceLeavesNoLocksBehind(t *testing.T) {
	hub := notifier.NewHub(16, zerolog.Nop())
	defer hub.Shutdown()
	s := New(memory.NewRepository(), hub, nopQueue{}, Options{Logger: zerolog.Nop()})
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "Room", "admin")
	require.NoError(t, err)
	_, err = s.Join(ctx, room.ID, "b")
	require.NoError(t, err)
	require.NoError(t, s.GrantMic(ctx, "admin", "b", room.ID))
	require.Error(t, s.GrantMic(ctx, "b", "b", room.ID))
	require.NoError(t, s.CloseRoom(ctx, room.ID, "admin"))

	assert.Equal(t, 0, s.locks.size())
}
