// Package service implements room membership and speaking-seat arbitration
package service

import (
	"context"
	"time"

	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/notifier"
	"github.com/navikt/zseats/internal/repository"
	"github.com/navikt/zseats/internal/utils"
	"github.com/navikt/zseats/internal/voice"
	"github.com/rs/zerolog"
)

// DefaultSeatCapacity is the number of participants that may speak at once
const DefaultSeatCapacity = 2

// Notifier fans committed events out to subscribers
type Notifier interface {
	Subscribe(ctx context.Context, roomID string) (*notifier.Subscription, error)
	Publish(roomID string, events ...models.ChangeEvent)
	CloseRoom(roomID string)
}

// DirectiveQueue accepts audio directives for asynchronous delivery
type DirectiveQueue interface {
	Enqueue(directives ...voice.Directive)
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	SeatCapacity   int
	CommitAttempts int
	// CodeGenerator produces candidate room codes
	CodeGenerator func() (string, error)
	Clock         func() time.Time
	Logger        zerolog.Logger
}

// Service is the room registry, membership tracker and seat arbiter. Every
// mutation of a room runs under that room's lock and commits the whole room
// state with a version check, so seat accounting cannot be raced.
type Service struct {
	repo       repository.Repository
	notifier   Notifier
	directives DirectiveQueue
	locks      *roomLocks

	capacity int
	attempts int
	codes    func() (string, error)
	now      func() time.Time
	log      zerolog.Logger
}

// New creates a Service
func New(repo repository.Repository, n Notifier, directives DirectiveQueue, opts Options) *Service {
	s := &Service{
		repo:       repo,
		notifier:   n,
		directives: directives,
		locks:      newRoomLocks(),
		capacity:   opts.SeatCapacity,
		attempts:   opts.CommitAttempts,
		codes:      opts.CodeGenerator,
		now:        opts.Clock,
		log:        utils.Module(opts.Logger, "service"),
	}

	if s.capacity < 1 {
		s.capacity = DefaultSeatCapacity
	}
	if s.attempts < 1 {
		s.attempts = 5
	}
	if s.codes == nil {
		s.codes = GenerateRoomCode
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// SeatCapacity returns the maximum number of simultaneous speakers per room
func (s *Service) SeatCapacity() int {
	return s.capacity
}

// Ping checks that the backing store is reachable
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
