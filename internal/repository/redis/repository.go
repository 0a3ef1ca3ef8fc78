// Package redis provides a Redis/Valkey implementation of the repository interface
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/navikt/zseats/internal/config"
	"github.com/navikt/zseats/internal/models"
	"github.com/redis/go-redis/v9"
)

// roomRecord is the value stored under a room key. Participants and
// requests live in separate hashes next to it.
type roomRecord struct {
	Room    models.Room `json:"room"`
	Version int64       `json:"version"`
	LastSeq uint64      `json:"last_seq"`
}

// Repository implements the repository interface with Redis storage
type Repository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRepository creates a new Redis repository
func NewRepository(cfg config.RedisConfig) (*Repository, error) {
	var client *redis.Client

	// Use URI if provided, otherwise build connection from individual parameters
	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}

		// Use DB and password from config if the URI leaves them out
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}

		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.RoomTTL,
	}, nil
}

// Close closes the Redis connection
func (r *Repository) Close() error {
	return r.client.Close()
}

// Ping checks the connection to Redis
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Repository) roomKey(id string) string {
	return fmt.Sprintf("%srooms:%s", r.keyPrefix, id)
}

func (r *Repository) participantsKey(roomID string) string {
	return fmt.Sprintf("%srooms:%s:participants", r.keyPrefix, roomID)
}

func (r *Repository) requestsKey(roomID string) string {
	return fmt.Sprintf("%srooms:%s:requests", r.keyPrefix, roomID)
}

func (r *Repository) codeKey(code string) string {
	return fmt.Sprintf("%scodes:%s", r.keyPrefix, code)
}

// CreateRoom claims the room code and stores an empty room state
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.Active {
		claimed, err := r.client.SetNX(ctx, r.codeKey(room.Code), room.ID, r.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to claim room code: %w", err)
		}
		if !claimed {
			return models.ErrCodeTaken
		}
	}

	data, err := json.Marshal(&roomRecord{Room: *room})
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.roomKey(room.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	if !created {
		if room.Active {
			r.client.Del(ctx, r.codeKey(room.Code))
		}
		return fmt.Errorf("%w: room %s already exists", models.ErrConflict, room.ID)
	}
	return nil
}

// GetRoom retrieves a room by ID
func (r *Repository) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	rec, err := r.getRecord(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	return &rec.Room, nil
}

// GetActiveRoomByCode resolves a code through the code index
func (r *Repository) GetActiveRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	id, err := r.client.Get(ctx, r.codeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve room code: %w", err)
	}

	room, err := r.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.Active || room.Code != code {
		return nil, models.ErrNotFound
	}
	return room, nil
}

// getter is satisfied by both the client and a watched transaction
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Repository) getRecord(ctx context.Context, c getter, id string) (*roomRecord, error) {
	data, err := c.Get(ctx, r.roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var rec roomRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &rec, nil
}

// LoadRoomState reads the room record and both hashes in one transaction
func (r *Repository) LoadRoomState(ctx context.Context, roomID string) (*models.RoomState, error) {
	var (
		roomCmd         *redis.StringCmd
		participantsCmd *redis.MapStringStringCmd
		requestsCmd     *redis.MapStringStringCmd
	)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		roomCmd = pipe.Get(ctx, r.roomKey(roomID))
		participantsCmd = pipe.HGetAll(ctx, r.participantsKey(roomID))
		requestsCmd = pipe.HGetAll(ctx, r.requestsKey(roomID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load room state: %w", err)
	}

	data, err := roomCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var rec roomRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}

	state := models.NewRoomState(rec.Room)
	state.Version = rec.Version
	state.LastSeq = rec.LastSeq

	for userID, raw := range participantsCmd.Val() {
		var p models.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal participant %s: %w", userID, err)
		}
		state.Participants = append(state.Participants, p)
	}
	sort.SliceStable(state.Participants, func(i, j int) bool {
		a, b := state.Participants[i], state.Participants[j]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})

	for id, raw := range requestsCmd.Val() {
		var req models.MicRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mic request %s: %w", id, err)
		}
		state.Requests = append(state.Requests, req)
	}
	sort.SliceStable(state.Requests, func(i, j int) bool {
		a, b := state.Requests[i], state.Requests[j]
		if !a.RequestedAt.Equal(b.RequestedAt) {
			return a.RequestedAt.Before(b.RequestedAt)
		}
		return a.ID < b.ID
	})

	return state, nil
}

// SaveRoomState commits the state with WATCH/MULTI so a concurrent writer
// on the same room makes the transaction fail instead of interleaving
func (r *Repository) SaveRoomState(ctx context.Context, state *models.RoomState, expectedVersion int64) error {
	roomID := state.Room.ID
	roomKey := r.roomKey(roomID)

	data, err := json.Marshal(&roomRecord{Room: state.Room, Version: state.Version, LastSeq: state.LastSeq})
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	participants := make(map[string]interface{}, len(state.Participants))
	for _, p := range state.Participants {
		raw, err := json.Marshal(&p)
		if err != nil {
			return fmt.Errorf("failed to marshal participant: %w", err)
		}
		participants[p.UserID] = raw
	}

	requests := make(map[string]interface{}, len(state.Requests))
	for _, req := range state.Requests {
		raw, err := json.Marshal(&req)
		if err != nil {
			return fmt.Errorf("failed to marshal mic request: %w", err)
		}
		requests[req.ID] = raw
	}

	txf := func(tx *redis.Tx) error {
		current, err := r.getRecord(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("%w: room %s is at version %d, expected %d",
				models.ErrConflict, roomID, current.Version, expectedVersion)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey, data, r.ttl)

			pipe.Del(ctx, r.participantsKey(roomID))
			if len(participants) > 0 {
				pipe.HSet(ctx, r.participantsKey(roomID), participants)
			}
			pipe.Del(ctx, r.requestsKey(roomID))
			if len(requests) > 0 {
				pipe.HSet(ctx, r.requestsKey(roomID), requests)
			}

			if r.ttl > 0 {
				pipe.Expire(ctx, r.participantsKey(roomID), r.ttl)
				pipe.Expire(ctx, r.requestsKey(roomID), r.ttl)
				if state.Room.Active {
					pipe.Expire(ctx, r.codeKey(state.Room.Code), r.ttl)
				}
			}

			if current.Room.Active && !state.Room.Active {
				pipe.Del(ctx, r.codeKey(current.Room.Code))
			}
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, roomKey)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: room %s changed during commit", models.ErrConflict, roomID)
	}
	return err
}
