package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/models"
)

// The messaging core consumes persistence through these narrow
// interfaces. Two implementations ship with the repo: postgres (pgx,
// raw SQL) and memory (mutex-guarded maps, used by tests and local
// dev). Handlers and the chat service only ever see the interfaces.
//
// Conventions, same as everywhere else in this codebase:
//   - context.Context first on every method (I/O).
//   - "not found" on point lookups is nil, nil — it's a routine result,
//     not an error.
//   - Store-level failures come back wrapped but uninterpreted; the
//     core never retries them.

// RoomStore persists rooms.
type RoomStore interface {
	// Create inserts a room. The caller provides the ID and timestamps.
	Create(ctx context.Context, room *models.Room) error

	// CreateWithMemberships inserts a room and its initial membership
	// rows as one atomic write: either everything lands or nothing
	// does. A failed insert must not leave a partial active set behind
	// for the resolver to match.
	CreateWithMemberships(ctx context.Context, room *models.Room, memberships []*models.Membership) error

	// GetByID returns a room, or nil, nil if it does not exist or was
	// soft-deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)

	// Touch bumps the room's UpdatedAt. Called on every message send so
	// the latest-updated room-match policy has something to order by.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error

	// SoftDelete marks the room deleted. Restoration is unsupported.
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MembershipStore persists participant-in-room records.
type MembershipStore interface {
	// Insert adds a membership row. It must fail if an active membership
	// for the same (room, participant) pair already exists — that
	// invariant is enforced here, not in the caller, so concurrent
	// syncs cannot produce duplicates.
	Insert(ctx context.Context, m *models.Membership) error

	// GetByID returns a membership row (active or departed), or nil, nil.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Membership, error)

	// FindActive returns the participant's active membership in the
	// room, or nil, nil. There is at most one.
	FindActive(ctx context.Context, roomID uuid.UUID, participant models.Identity) (*models.Membership, error)

	// ListByRoom returns the room's memberships, active only unless
	// includeDeparted is set.
	ListByRoom(ctx context.Context, roomID uuid.UUID, includeDeparted bool) ([]models.Membership, error)

	// ListForIdentity returns all of the participant's memberships
	// across rooms, active only unless includeDeparted is set.
	ListForIdentity(ctx context.Context, participant models.Identity, includeDeparted bool) ([]models.Membership, error)

	// ListForIdentityInRoom returns every membership row the
	// participant has ever held in the room, newest join first. A
	// participant who left and rejoined has several rows here; their
	// visible history is the union of those windows.
	ListForIdentityInRoom(ctx context.Context, roomID uuid.UUID, participant models.Identity) ([]models.Membership, error)

	// RoomsByExactActiveSet returns every non-deleted room whose full
	// active membership identity set equals exactly the given set — no
	// extra members, none missing. Order is unspecified; the resolver
	// applies the match policy.
	RoomsByExactActiveSet(ctx context.Context, participants []models.Identity) ([]models.Room, error)

	// SetLastReadAt advances the membership's read marker. The store
	// guarantees monotonicity: a timestamp at or before the current
	// marker is a no-op, never an error, so a stale MarkRead racing a
	// fresh one cannot regress it.
	SetLastReadAt(ctx context.Context, id uuid.UUID, at time.Time) error

	// Leave sets LeftAt. Once set it is immutable: a second call is a
	// no-op. Rejoining requires a new Insert.
	Leave(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MessageStore persists the per-room message log.
type MessageStore interface {
	// Insert appends a message, assigning its ID. If msg.CreatedAt is
	// zero the store stamps it; a non-zero CreatedAt is kept as-is
	// (backfilled and system messages carry their own times).
	Insert(ctx context.Context, msg *models.Message) error

	// GetByID returns a message, or nil, nil. Soft-deleted messages are
	// not returned.
	GetByID(ctx context.Context, id int64) (*models.Message, error)

	// ListVisible returns the room's messages inside any of the given
	// windows, newest first, excluding soft-deleted ones. before is a
	// message-ID cursor (0 = from the latest); limit caps the page.
	ListVisible(ctx context.Context, roomID uuid.UUID, windows []models.Window, before int64, limit int) ([]models.Message, error)

	// LatestVisible returns the newest message inside the windows, or
	// nil, nil if there is none.
	LatestVisible(ctx context.Context, roomID uuid.UUID, windows []models.Window) (*models.Message, error)

	// SoftDelete marks the message deleted and scrubs its body in the
	// same write. Already-deleted messages are left alone.
	SoftDelete(ctx context.Context, id int64, at time.Time) error

	// CountUnread counts messages the membership can see that were
	// created after its read marker (or all of them if it never read),
	// excluding the membership's own messages, and excluding system
	// messages unless includeSystem is set.
	CountUnread(ctx context.Context, m models.Membership, includeSystem bool) (int, error)

	// HasUnreadSince reports whether, across ANY of the participant's
	// active memberships in non-deleted rooms, at least one message
	// satisfies the unread predicate restricted to created_at >= since.
	// One set-membership query, not one query per room.
	HasUnreadSince(ctx context.Context, participant models.Identity, since time.Time, includeSystem bool) (bool, error)

	// IdentitiesWithUnreadSince returns the distinct participants that
	// HasUnreadSince would report true for. Used by the digest sweep.
	IdentitiesWithUnreadSince(ctx context.Context, since time.Time, includeSystem bool) ([]models.Identity, error)
}

// UserStore persists first-party accounts (the "user" identity kind).
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Profile is what an identity resolves to for presentation.
type Profile struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// IdentityProvider resolves an opaque (kind, id) to presentation data.
// Read-only: the core never writes through it. Returns nil, nil when
// the identity is unknown.
type IdentityProvider interface {
	Resolve(ctx context.Context, identity models.Identity) (*Profile, error)
}
