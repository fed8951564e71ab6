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
	"github.com/lalith-99/parley/internal/repository"
)

// UserStore persists first-party accounts and doubles as the identity
// provider for the "user" kind.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO users (id, email, display_name, avatar_url, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		u.ID, u.Email, u.DisplayName, u.AvatarURL, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, display_name, avatar_url, password_hash, created_at
		FROM users
		WHERE email = $1`

	return s.get(ctx, query, email)
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, display_name, avatar_url, password_hash, created_at
		FROM users
		WHERE id = $1`

	return s.get(ctx, query, id)
}

func (s *UserStore) get(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.AvatarURL,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Resolve implements repository.IdentityProvider for "user" identities.
// Unknown kinds and unparseable IDs resolve to nil, nil — not an error,
// just no profile.
func (s *UserStore) Resolve(ctx context.Context, identity models.Identity) (*repository.Profile, error) {
	if identity.Kind != models.KindUser {
		return nil, nil
	}
	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return nil, nil
	}
	u, err := s.GetByID(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	return &repository.Profile{DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}, nil
}
