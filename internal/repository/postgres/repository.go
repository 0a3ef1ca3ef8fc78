// Package postgres provides a PostgreSQL implementation of the repository interface
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/navikt/zseats/internal/models"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	admin_user_id TEXT NOT NULL,
	room_code     TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL,
	version       BIGINT NOT NULL DEFAULT 0,
	last_seq      BIGINT NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS rooms_active_code_idx ON rooms (room_code) WHERE is_active;

CREATE TABLE IF NOT EXISTS participants (
	room_id    TEXT NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	mic_status TEXT NOT NULL,
	joined_at  TIMESTAMPTZ NOT NULL,
	position   INTEGER NOT NULL,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS mic_requests (
	id           TEXT PRIMARY KEY,
	room_id      TEXT NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	status       TEXT NOT NULL,
	requested_at TIMESTAMPTZ NOT NULL,
	resolved_at  TIMESTAMPTZ,
	position     INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS mic_requests_pending_idx ON mic_requests (room_id, user_id) WHERE status = 'pending';
`

// Repository implements the repository interface on a pgx connection pool
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository connects to PostgreSQL
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Repository{db: pool}, nil
}

// Migrate creates the tables and indexes if they do not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

// Ping checks the connection to the database
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// CreateRoom inserts the room row. The partial unique index on active
// codes rejects a code already in use.
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rooms (id, name, admin_user_id, room_code, is_active, created_at, version, last_seq)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0)
	`, room.ID, room.Name, room.AdminUserID, room.Code, room.Active, room.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "rooms_active_code_idx" {
				return models.ErrCodeTaken
			}
			return fmt.Errorf("%w: room %s already exists", models.ErrConflict, room.ID)
		}
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

const selectRoom = `SELECT id, name, admin_user_id, room_code, is_active, created_at FROM rooms`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var room models.Room
	err := row.Scan(&room.ID, &room.Name, &room.AdminUserID, &room.Code, &room.Active, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan room: %w", err)
	}
	return &room, nil
}

// GetRoom retrieves a room by ID
func (r *Repository) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	return scanRoom(r.db.QueryRow(ctx, selectRoom+` WHERE id = $1`, id))
}

// GetActiveRoomByCode retrieves the active room that owns code
func (r *Repository) GetActiveRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return scanRoom(r.db.QueryRow(ctx, selectRoom+` WHERE room_code = $1 AND is_active`, code))
}

// LoadRoomState reads the room and its rows from one snapshot
func (r *Repository) LoadRoomState(ctx context.Context, roomID string) (*models.RoomState, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		state   models.RoomState
		version int64
		lastSeq int64
	)
	err = tx.QueryRow(ctx, `
		SELECT id, name, admin_user_id, room_code, is_active, created_at, version, last_seq
		FROM rooms WHERE id = $1
	`, roomID).Scan(&state.Room.ID, &state.Room.Name, &state.Room.AdminUserID, &state.Room.Code,
		&state.Room.Active, &state.Room.CreatedAt, &version, &lastSeq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	state.Version = version
	state.LastSeq = uint64(lastSeq)

	rows, err := tx.Query(ctx, `
		SELECT room_id, user_id, mic_status, joined_at
		FROM participants WHERE room_id = $1 ORDER BY position
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	state.Participants, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Participant, error) {
		var p models.Participant
		err := row.Scan(&p.RoomID, &p.UserID, &p.MicStatus, &p.JoinedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan participants: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT id, room_id, user_id, status, requested_at, resolved_at
		FROM mic_requests WHERE room_id = $1 ORDER BY position
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mic requests: %w", err)
	}
	state.Requests, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.MicRequest, error) {
		var req models.MicRequest
		err := row.Scan(&req.ID, &req.RoomID, &req.UserID, &req.Status, &req.RequestedAt, &req.ResolvedAt)
		return req, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mic requests: %w", err)
	}

	return &state, nil
}

// SaveRoomState bumps the room row only if its version is unchanged and
// replaces the child rows in the same transaction
func (r *Repository) SaveRoomState(ctx context.Context, state *models.RoomState, expectedVersion int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	room := state.Room
	tag, err := tx.Exec(ctx, `
		UPDATE rooms
		SET name = $3, admin_user_id = $4, room_code = $5, is_active = $6, version = $7, last_seq = $8
		WHERE id = $1 AND version = $2
	`, room.ID, expectedVersion, room.Name, room.AdminUserID, room.Code, room.Active, state.Version, int64(state.LastSeq))
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, room.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check room: %w", err)
		}
		if !exists {
			return models.ErrNotFound
		}
		return fmt.Errorf("%w: room %s changed during commit", models.ErrConflict, room.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM participants WHERE room_id = $1`, room.ID); err != nil {
		return fmt.Errorf("failed to clear participants: %w", err)
	}
	if len(state.Participants) > 0 {
		rows := make([][]any, len(state.Participants))
		for i, p := range state.Participants {
			rows[i] = []any{room.ID, p.UserID, string(p.MicStatus), p.JoinedAt, i}
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"participants"},
			[]string{"room_id", "user_id", "mic_status", "joined_at", "position"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to write participants: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM mic_requests WHERE room_id = $1`, room.ID); err != nil {
		return fmt.Errorf("failed to clear mic requests: %w", err)
	}
	if len(state.Requests) > 0 {
		rows := make([][]any, len(state.Requests))
		for i, req := range state.Requests {
			rows[i] = []any{req.ID, room.ID, req.UserID, string(req.Status), req.RequestedAt, req.ResolvedAt, i}
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"mic_requests"},
			[]string{"id", "room_id", "user_id", "status", "requested_at", "resolved_at", "position"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to write mic requests: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit room state: %w", err)
	}
	return nil
}
