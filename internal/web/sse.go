package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/go-chi/chi/v5"
	"github.com/navikt/zseats/internal/models"
	"github.com/navikt/zseats/internal/notifier"
	"github.com/navikt/zseats/internal/utils"
	"github.com/rs/zerolog"
)

// Stream event names besides the change event kinds
const (
	EventSnapshot = "snapshot"
	EventEnd      = "end"
)

// End reasons sent in the final event of a stream
const (
	EndRoomClosed   = "room-closed"
	EndSlowConsumer = "slow-consumer"
	EndShutdown     = "shutdown"
)

// RoomWatcher is the part of the room service the event stream needs
type RoomWatcher interface {
	Watch(ctx context.Context, roomID string) (models.RoomSnapshot, *notifier.Subscription, error)
	Unsubscribe(sub *notifier.Subscription)
}

// EndEvent is the payload of the final event of a stream
type EndEvent struct {
	Reason string `json:"reason"`
}

// EventStream serves a room's snapshot followed by its change events as
// server-sent events
type EventStream struct {
	watcher   RoomWatcher
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventStream creates the handler. It expects a chi route with a roomID parameter.
func NewEventStream(watcher RoomWatcher, heartbeat time.Duration, logger zerolog.Logger) *EventStream {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &EventStream{
		watcher:   watcher,
		heartbeat: heartbeat,
		log:       utils.Module(logger, "web.sse"),
	}
}

// ServeHTTP implements the http.Handler interface for SSE connections
func (es *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Set CORS headers to make SSE work in various environments
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if !isEventStreamSupported(r) {
		Error(w, http.StatusNotAcceptable, CodeValidation, "this endpoint requires EventStream support")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, CodeInternal, "streaming not supported")
		return
	}

	roomID := chi.URLParam(r, "roomID")
	snap, sub, err := es.watcher.Watch(r.Context(), roomID)
	if err != nil {
		ServiceError(w, es.log, err)
		return
	}
	defer es.watcher.Unsubscribe(sub)

	log := es.log.With().Str("room_id", roomID).Str("remote", r.RemoteAddr).Logger()
	log.Info().Uint64("seq", snap.Seq).Msg("SSE client connected")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx proxy buffering
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	err = sse.Encode(w, sse.Event{
		Id:    strconv.FormatUint(snap.Seq, 10),
		Event: EventSnapshot,
		Retry: 5000,
		Data:  snap,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to send snapshot")
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(es.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("SSE client disconnected")
			return

		case ev, open := <-sub.Events():
			if !open {
				reason := endReason(sub.Err())
				if reason != "" {
					_ = sse.Encode(w, sse.Event{Event: EventEnd, Data: EndEvent{Reason: reason}})
					flusher.Flush()
				}
				log.Info().Str("reason", reason).Msg("SSE stream ended")
				return
			}

			err := sse.Encode(w, sse.Event{
				Id:    strconv.FormatUint(ev.Seq, 10),
				Event: string(ev.Kind),
				Data:  ev,
			})
			if err != nil {
				log.Warn().Err(err).Uint64("seq", ev.Seq).Msg("failed to write event")
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
				log.Debug().Err(err).Msg("heartbeat write failed")
				return
			}
			flusher.Flush()
		}
	}
}

func endReason(err error) string {
	switch {
	case errors.Is(err, notifier.ErrRoomClosed):
		return EndRoomClosed
	case errors.Is(err, notifier.ErrSlowSubscriber):
		return EndSlowConsumer
	case errors.Is(err, notifier.ErrShutdown):
		return EndShutdown
	default:
		return ""
	}
}

// isEventStreamSupported reports whether the client accepts event streams
func isEventStreamSupported(r *http.Request) bool {
	accepts := r.Header.Get("Accept")
	return accepts == "" ||
		strings.Contains(accepts, "*/*") ||
		strings.Contains(accepts, "text/event-stream")
}
