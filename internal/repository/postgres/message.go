package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/parley/internal/models"
)

// MessageStore mirrors the chat package's visibility and unread
// predicates in SQL. If the rules in internal/chat/visibility.go
// change, the WHERE clauses here change with them.
type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `
	id, room_id, sender_membership_id, body, reply_to_id,
	created_at, updated_at, deleted_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderMembershipID,
		&msg.Body,
		&msg.ReplyToID,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&msg.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Insert(ctx context.Context, msg *models.Message) error {
	// Messages use bigserial; Postgres assigns the ID and RETURNING
	// hands it back. A caller-provided CreatedAt is kept (backfills and
	// system messages carry their own times); zero means "stamp now".
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}

	query := `
		INSERT INTO messages (room_id, sender_membership_id, body, reply_to_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		msg.RoomID, msg.SenderMembershipID, msg.Body, msg.ReplyToID, msg.CreatedAt, msg.UpdatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *MessageStore) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1 AND deleted_at IS NULL`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// windowClause renders "message falls inside any window" as SQL,
// appending the bound values to args. An empty window list matches
// nothing — no membership rows means no visible history.
func windowClause(windows []models.Window, args *[]any) string {
	if len(windows) == 0 {
		return "FALSE"
	}
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		conds := make([]string, 0, 2)
		if !w.From.IsZero() {
			*args = append(*args, w.From)
			conds = append(conds, fmt.Sprintf("created_at >= $%d", len(*args)))
		}
		if w.To != nil {
			*args = append(*args, *w.To)
			conds = append(conds, fmt.Sprintf("created_at <= $%d", len(*args)))
		}
		if len(conds) == 0 {
			// Open on both ends: the membership sees everything.
			conds = append(conds, "TRUE")
		}
		parts = append(parts, "("+strings.Join(conds, " AND ")+")")
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func (s *MessageStore) ListVisible(ctx context.Context, roomID uuid.UUID, windows []models.Window, before int64, limit int) ([]models.Message, error) {
	args := []any{roomID}
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = $1 AND deleted_at IS NULL
		  AND ` + windowClause(windows, &args)

	if before > 0 {
		args = append(args, before)
		query += fmt.Sprintf(" AND id < $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *MessageStore) LatestVisible(ctx context.Context, roomID uuid.UUID, windows []models.Window) (*models.Message, error) {
	msgs, err := s.ListVisible(ctx, roomID, windows, 0, 1)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

func (s *MessageStore) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	// Marker and body scrub are one UPDATE: there is no interleaving in
	// which the message is deleted but its body still readable. Rows
	// already deleted are untouched, so the scrub time never moves.
	query := `
		UPDATE messages
		SET deleted_at = $2, updated_at = $2, body = ''
		WHERE id = $1 AND deleted_at IS NULL`

	if _, err := s.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	return nil
}

func (s *MessageStore) CountUnread(ctx context.Context, m models.Membership, includeSystem bool) (int, error) {
	// SQL rendition of chat.UnreadPredicate: visible inside the
	// membership's window, not authored by it, newer than its read
	// marker (or it never read), system messages only when asked.
	query := `
		SELECT count(*)
		FROM messages
		WHERE room_id = $1
		  AND deleted_at IS NULL
		  AND created_at >= $2
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		  AND (sender_membership_id IS NULL OR sender_membership_id != $4)
		  AND ($5 OR sender_membership_id IS NOT NULL)
		  AND ($6::timestamptz IS NULL OR created_at > $6)`

	var n int
	err := s.pool.QueryRow(ctx, query,
		m.RoomID, m.JoinedAt, m.LeftAt, m.ID, includeSystem, m.LastReadAt,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (s *MessageStore) HasUnreadSince(ctx context.Context, participant models.Identity, since time.Time, includeSystem bool) (bool, error) {
	// One EXISTS over the membership join — not a query per room.
	// Postgres stops at the first qualifying row, which is what makes
	// this usable as a fleet-wide digest filter.
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM memberships mem
			JOIN messages msg ON msg.room_id = mem.room_id
			JOIN rooms r ON r.id = mem.room_id
			WHERE mem.participant_kind = $1 AND mem.participant_id = $2
			  AND mem.left_at IS NULL
			  AND r.deleted_at IS NULL
			  AND msg.deleted_at IS NULL
			  AND msg.created_at >= mem.joined_at
			  AND msg.created_at >= $3
			  AND (msg.sender_membership_id IS NULL OR msg.sender_membership_id != mem.id)
			  AND ($4 OR msg.sender_membership_id IS NOT NULL)
			  AND (mem.last_read_at IS NULL OR msg.created_at > mem.last_read_at)
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, participant.Kind, participant.ID, since, includeSystem).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unread since: %w", err)
	}
	return exists, nil
}

func (s *MessageStore) IdentitiesWithUnreadSince(ctx context.Context, since time.Time, includeSystem bool) ([]models.Identity, error) {
	query := `
		SELECT DISTINCT mem.participant_kind, mem.participant_id
		FROM memberships mem
		JOIN messages msg ON msg.room_id = mem.room_id
		JOIN rooms r ON r.id = mem.room_id
		WHERE mem.left_at IS NULL
		  AND r.deleted_at IS NULL
		  AND msg.deleted_at IS NULL
		  AND msg.created_at >= mem.joined_at
		  AND msg.created_at >= $1
		  AND (msg.sender_membership_id IS NULL OR msg.sender_membership_id != mem.id)
		  AND ($2 OR msg.sender_membership_id IS NOT NULL)
		  AND (mem.last_read_at IS NULL OR msg.created_at > mem.last_read_at)
		ORDER BY mem.participant_kind, mem.participant_id`

	rows, err := s.pool.Query(ctx, query, since, includeSystem)
	if err != nil {
		return nil, fmt.Errorf("identities with unread: %w", err)
	}
	defer rows.Close()

	out := make([]models.Identity, 0)
	for rows.Next() {
		var id models.Identity
		if err := rows.Scan(&id.Kind, &id.ID); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}
