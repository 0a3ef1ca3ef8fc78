package voice

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/navikt/zseats/internal/utils"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Directive tells the transport to enable or disable one participant's audio
type Directive struct {
	RoomID  string
	UserID  string
	Enabled bool
	// Reason is the event kind that caused the directive, for logging
	Reason string
}

// Dispatcher delivers directives asynchronously. Directives for the same
// room always go to the same worker, so they reach the transport in the
// order they were enqueued. Enqueue never waits on the transport. Failures
// are logged and never reported back.
type Dispatcher struct {
	transport Transport
	shards    []*shard
	backlog   int
	timeout   time.Duration
	log       zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     conc.WaitGroup
}

// shard is one worker's FIFO. wake holds at most one pending signal.
type shard struct {
	mu      sync.Mutex
	pending []Directive
	closed  bool
	wake    chan struct{}
}

// NewDispatcher starts workers shard workers. A shard whose backlog grows
// past backlogWarn is logged, but directives are never dropped.
func NewDispatcher(transport Transport, workers, backlogWarn int, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if backlogWarn < 1 {
		backlogWarn = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	d := &Dispatcher{
		transport: transport,
		shards:    make([]*shard, workers),
		backlog:   backlogWarn,
		timeout:   timeout,
		log:       utils.Module(logger, "voice.dispatcher"),
	}

	for i := range d.shards {
		s := &shard{wake: make(chan struct{}, 1)}
		d.shards[i] = s
		d.wg.Go(func() { d.run(s) })
	}
	return d
}

// Enqueue queues directives in order and returns immediately
func (d *Dispatcher) Enqueue(directives ...Directive) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, dir := range directives {
		if d.closed {
			d.log.Warn().Str("room_id", dir.RoomID).Str("user_id", utils.SanitizeLogString(dir.UserID)).
				Bool("enabled", dir.Enabled).Msg("dispatcher closed, dropping directive")
			continue
		}

		s := d.shards[d.shard(dir.RoomID)]
		s.mu.Lock()
		s.pending = append(s.pending, dir)
		depth := len(s.pending)
		s.mu.Unlock()
		s.signal()

		if depth == d.backlog+1 {
			d.log.Warn().Str("room_id", dir.RoomID).Int("backlog", depth).Msg("voice transport falling behind")
		}
	}
}

// Close stops accepting directives and waits for queued ones to be delivered
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, s := range d.shards {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.signal()
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) shard(roomID string) int {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(len(d.shards)))
}

func (s *shard) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// take waits for pending directives. It returns false once the shard is
// closed and drained.
func (s *shard) take() ([]Directive, bool) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()
			return batch, true
		}
		if s.closed {
			s.mu.Unlock()
			return nil, false
		}
		s.mu.Unlock()
		<-s.wake
	}
}

func (d *Dispatcher) run(s *shard) {
	for {
		batch, ok := s.take()
		if !ok {
			return
		}
		for _, dir := range batch {
			d.deliver(dir)
		}
	}
}

func (d *Dispatcher) deliver(dir Directive) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.transport.SetAudioEnabled(ctx, dir.RoomID, dir.UserID, dir.Enabled)
	if err != nil {
		d.log.Warn().Err(err).
			Str("room_id", dir.RoomID).
			Str("user_id", utils.SanitizeLogString(dir.UserID)).
			Bool("enabled", dir.Enabled).
			Str("reason", dir.Reason).
			Msg("voice transport rejected directive")
		return
	}

	d.log.Debug().
		Str("room_id", dir.RoomID).
		Str("user_id", utils.SanitizeLogString(dir.UserID)).
		Bool("enabled", dir.Enabled).
		Msg("directive delivered")
}
