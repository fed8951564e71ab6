package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/parley/internal/models"
)

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

const membershipColumns = `
	id, room_id, participant_kind, participant_id, role,
	display_name, avatar_url, reference_id,
	joined_at, left_at, last_read_at`

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	err := row.Scan(
		&m.ID,
		&m.RoomID,
		&m.Participant.Kind,
		&m.Participant.ID,
		&m.Role,
		&m.DisplayName,
		&m.AvatarURL,
		&m.ReferenceID,
		&m.JoinedAt,
		&m.LeftAt,
		&m.LastReadAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MembershipStore) Insert(ctx context.Context, m *models.Membership) error {
	return insertMembership(ctx, s.pool, m)
}

func insertMembership(ctx context.Context, q execer, m *models.Membership) error {
	// The partial unique index uq_memberships_active (room_id,
	// participant_kind, participant_id) WHERE left_at IS NULL rejects a
	// second active row for the same pair, so concurrent syncs cannot
	// double-add a participant.
	query := `
		INSERT INTO memberships (
			id, room_id, participant_kind, participant_id, role,
			display_name, avatar_url, reference_id, joined_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := q.Exec(ctx, query,
		m.ID, m.RoomID, m.Participant.Kind, m.Participant.ID, m.Role,
		m.DisplayName, m.AvatarURL, m.ReferenceID, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *MembershipStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1`

	m, err := scanMembership(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) FindActive(ctx context.Context, roomID uuid.UUID, participant models.Identity) (*models.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE room_id = $1 AND participant_kind = $2 AND participant_id = $3
		  AND left_at IS NULL`

	m, err := scanMembership(s.pool.QueryRow(ctx, query, roomID, participant.Kind, participant.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active membership: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) ListByRoom(ctx context.Context, roomID uuid.UUID, includeDeparted bool) ([]models.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE room_id = $1 AND ($2 OR left_at IS NULL)
		ORDER BY joined_at, id`

	return s.list(ctx, query, roomID, includeDeparted)
}

func (s *MembershipStore) ListForIdentity(ctx context.Context, participant models.Identity, includeDeparted bool) ([]models.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE participant_kind = $1 AND participant_id = $2
		  AND ($3 OR left_at IS NULL)
		ORDER BY joined_at, id`

	return s.list(ctx, query, participant.Kind, participant.ID, includeDeparted)
}

func (s *MembershipStore) ListForIdentityInRoom(ctx context.Context, roomID uuid.UUID, participant models.Identity) ([]models.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE room_id = $1 AND participant_kind = $2 AND participant_id = $3
		ORDER BY joined_at DESC`

	return s.list(ctx, query, roomID, participant.Kind, participant.ID)
}

func (s *MembershipStore) list(ctx context.Context, query string, args ...any) ([]models.Membership, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]models.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return memberships, nil
}

func (s *MembershipStore) RoomsByExactActiveSet(ctx context.Context, participants []models.Identity) ([]models.Room, error) {
	keys := make([]string, 0, len(participants))
	for _, p := range participants {
		keys = append(keys, p.Key())
	}

	// Exact match in one grouped query: the room's active membership
	// count must equal the target set size, and every active member
	// must be in the target set. Together that is set equality.
	query := `
		SELECT r.id, r.name, r.description, r.metadata, r.created_at, r.updated_at, r.deleted_at
		FROM rooms r
		JOIN memberships m ON m.room_id = r.id AND m.left_at IS NULL
		WHERE r.deleted_at IS NULL
		GROUP BY r.id
		HAVING count(*) = cardinality($1::text[])
		   AND bool_and(m.participant_kind || ':' || m.participant_id = ANY($1::text[]))`

	rows, err := s.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("rooms by exact membership: %w", err)
	}
	defer rows.Close()

	rooms := make([]models.Room, 0)
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

func (s *MembershipStore) SetLastReadAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	// Monotonic by construction: the WHERE clause drops stale updates,
	// so MarkRead racing itself can never move the marker backward.
	query := `
		UPDATE memberships
		SET last_read_at = $2
		WHERE id = $1 AND (last_read_at IS NULL OR last_read_at < $2)`

	if _, err := s.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("set last read at: %w", err)
	}
	return nil
}

func (s *MembershipStore) Leave(ctx context.Context, id uuid.UUID, at time.Time) error {
	// left_at is write-once. A second Leave matches zero rows.
	query := `
		UPDATE memberships
		SET left_at = $2
		WHERE id = $1 AND left_at IS NULL`

	if _, err := s.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("leave membership: %w", err)
	}
	return nil
}
