package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity names any entity that can send or receive messages — a user,
// a bot, a service. It is a (kind, id) pair, never a foreign key into a
// single table, so the host system can plug in whatever actor types it
// has without this package knowing about them.
//
// Why structural comparison and not reference identity?
//   - Two Identity values with the same kind and id ARE the same
//     participant, regardless of where they were constructed. Go struct
//     equality (==) gives us exactly that for free.
type Identity struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Well-known identity kinds. The set is open: the core compares kinds
// structurally and never switches on them.
const (
	KindUser = "user"
	KindBot  = "bot"
)

// Key returns a stable string form usable as a map key or a wire label.
func (i Identity) Key() string {
	return i.Kind + ":" + i.ID
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.Kind == "" && i.ID == ""
}

// SenderIdentity returns the identity itself. Together with
// CanCreateRooms this lets a plain Identity act as a message sender.
func (i Identity) SenderIdentity() Identity { return i }

// CanCreateRooms is true for compound identities: a user or bot may own
// memberships in many rooms and may open new ones.
func (i Identity) CanCreateRooms() bool { return true }

// Role is a membership role within a room.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Room is a shared messaging context. Its identity is immutable once
// created; membership is a separate entity and is never mutated through
// the room itself.
type Room struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   *time.Time        `json:"deleted_at,omitempty"`
}

// Membership records one participant's presence in one room, bounded by
// a join time and, once they leave, a leave time.
//
// Invariants the stores enforce:
//   - At most one active (LeftAt == nil) membership per (room,
//     participant) pair. Leaving and rejoining creates a new row, so the
//     same participant can hold several historical rows in one room.
//   - JoinedAt is immutable. LeftAt, once set, is immutable: leaving is
//     a one-way transition.
//   - LastReadAt only moves forward.
type Membership struct {
	ID          uuid.UUID  `json:"id"`
	RoomID      uuid.UUID  `json:"room_id"`
	Participant Identity   `json:"participant"`
	Role        Role       `json:"role"`
	DisplayName string     `json:"display_name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	ReferenceID string     `json:"reference_id,omitempty"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
}

// IsActive reports whether the participant is still in the room.
func (m *Membership) IsActive() bool {
	return m.LeftAt == nil
}

// CanManageParticipants reports whether this membership may add or
// remove other participants.
func (m *Membership) CanManageParticipants() bool {
	return m.Role == RoleAdmin
}

// SenderIdentity lets an existing membership author messages on its own
// behalf (it sends as the participant it records).
func (m *Membership) SenderIdentity() Identity { return m.Participant }

// CanCreateRooms is false for a bare membership: a membership belongs to
// exactly one room and cannot spawn another. Use the participant's
// compound identity instead.
func (m *Membership) CanCreateRooms() bool { return false }

// Message is a single entry in a room's log.
//
// Why int64 IDs (bigserial) instead of UUIDs?
//   - Messages are the highest-volume entity; 8 bytes beats 16 at
//     millions of rows.
//   - The ID is monotone with insertion order, which gives CreatedAt
//     ties a stable secondary sort key and gives pagination a cursor.
//
// SenderMembershipID == nil marks a system message: no human or bot
// author ("Alice joined"). The body is immutable once delivered; soft
// deletion sets DeletedAt and scrubs the body in the same write.
type Message struct {
	ID                 int64      `json:"id"`
	RoomID             uuid.UUID  `json:"room_id"`
	SenderMembershipID *uuid.UUID `json:"sender_membership_id,omitempty"`
	Body               string     `json:"body"`
	ReplyToID          *int64     `json:"reply_to_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// IsSystem reports whether the message has no author.
func (m *Message) IsSystem() bool {
	return m.SenderMembershipID == nil
}

// IsDeleted reports whether the message was soft-deleted. Deleted
// messages are never visible to anyone; there are no tombstones.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Window is one [From, To] visibility range derived from a membership.
// A nil To means the membership is still active and the range is open
// above. A participant who left and rejoined has several disjoint
// windows, one per membership row.
type Window struct {
	From time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window. Both bounds are
// inclusive: a message created exactly at the join or leave instant is
// visible.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// User is a first-party account backing the "user" identity kind. It
// exists so the API layer can authenticate callers and so the identity
// provider can resolve display names; the messaging core itself only
// ever sees the Identity.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AsIdentity returns the user's participant identity.
func (u *User) AsIdentity() Identity {
	return Identity{Kind: KindUser, ID: u.ID.String()}
}
