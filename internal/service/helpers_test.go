package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/notifier"
	"github.com/navikt/zseats/internal/repository"
	"github.com/navikt/zseats/internal/repository/memory"
	"github.com/navikt/zseats/internal/service"
	"github.com/navikt/zseats/internal/voice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// directiveLog records directives instead of delivering them
type directiveLog struct {
	mu   sync.Mutex
	list []voice.Directive
}

func (d *directiveLog) Enqueue(directives ...voice.Directive) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.list = append(d.list, directives...)
}

func (d *directiveLog) all() []voice.Directive {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]voice.Directive(nil), d.list...)
}

type fixture struct {
	svc        *service.Service
	repo       repository.Repository
	hub        *notifier.Hub
	directives *directiveLog
}

func newFixture(t *testing.T, opts service.Options) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, memory.NewRepository(), opts)
}

func newFixtureWithRepo(t *testing.T, repo repository.Repository, opts service.Options) *fixture {
	t.Helper()
	hub := notifier.NewHub(256, zerolog.Nop())
	t.Cleanup(hub.Shutdown)

	directives := &directiveLog{}
	opts.Logger = zerolog.Nop()
	return &fixture{
		svc:        service.New(repo, hub, directives, opts),
		repo:       repo,
		hub:        hub,
		directives: directives,
	}
}

// room creates a room administered by "admin" with the given members joined
func (f *fixture) room(t *testing.T, members ...string) string {
	t.Helper()
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, "Friday Standup", "admin")
	require.NoError(t, err)
	for _, m := range members {
		_, err := f.svc.Join(ctx, room.ID, m)
		require.NoError(t, err)
	}
	return room.ID
}

func (f *fixture) status(t *testing.T, roomID, userID string) models.MicStatus {
	t.Helper()
	participants, err := f.svc.ListParticipants(context.Background(), roomID)
	require.NoError(t, err)
	for _, p := range participants {
		if p.UserID == userID {
			return p.MicStatus
		}
	}
	t.Fatalf("%s is not in room %s", userID, roomID)
	return ""
}

func (f *fixture) granted(t *testing.T, roomID string) int {
	t.Helper()
	participants, err := f.svc.ListParticipants(context.Background(), roomID)
	require.NoError(t, err)
	n := 0
	for _, p := range participants {
		if p.MicStatus == models.MicStatusGranted {
			n++
		}
	}
	return n
}

// next reads exactly n events from sub
func next(t *testing.T, sub *notifier.Subscription, n int) []models.ChangeEvent {
	t.Helper()
	events := make([]models.ChangeEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("stream ended after %d of %d events: %v", len(events), n, sub.Err())
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}

// quiet asserts that no event is waiting on sub
func quiet(t *testing.T, sub *notifier.Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event %s seq %d", ev.Kind, ev.Seq)
		}
	case <-time.After(20 * time.Millisecond):
	}
}

func kinds(events []models.ChangeEvent) []models.EventKind {
	out := make([]models.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}
