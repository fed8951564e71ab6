package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/parley/internal/models"
)

// execer is the slice of pgx that both the pool and an open
// transaction satisfy. Insert helpers take it so the same SQL runs
// standalone or inside a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func (s *RoomStore) Create(ctx context.Context, room *models.Room) error {
	return insertRoom(ctx, s.pool, room)
}

// CreateWithMemberships commits the room and its initial membership
// rows in one transaction, so a mid-creation failure cannot leave a
// partial active set for the resolver to match as a room.
func (s *RoomStore) CreateWithMemberships(ctx context.Context, room *models.Room, memberships []*models.Membership) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin room creation: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertRoom(ctx, tx, room); err != nil {
		return err
	}
	for _, m := range memberships {
		if err := insertMembership(ctx, tx, m); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit room creation: %w", err)
	}
	return nil
}

func insertRoom(ctx context.Context, q execer, room *models.Room) error {
	query := `
		INSERT INTO rooms (id, name, description, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := q.Exec(ctx, query,
		room.ID, room.Name, room.Description, room.Metadata, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *RoomStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	query := `
		SELECT id, name, description, metadata, created_at, updated_at, deleted_at
		FROM rooms
		WHERE id = $1 AND deleted_at IS NULL`

	var room models.Room
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.Metadata,
		&room.CreatedAt,
		&room.UpdatedAt,
		&room.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &room, nil
}

func (s *RoomStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	// updated_at only ever moves forward; a racing older touch loses.
	query := `
		UPDATE rooms
		SET updated_at = $2
		WHERE id = $1 AND updated_at < $2`

	if _, err := s.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	return nil
}

func (s *RoomStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE rooms
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`

	if _, err := s.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("soft delete room: %w", err)
	}
	return nil
}
