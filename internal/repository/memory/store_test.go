package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/models"
)

func identity(id string) models.Identity {
	return models.Identity{Kind: models.KindUser, ID: id}
}

func TestMembershipActiveUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	roomID := uuid.New()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	first := &models.Membership{RoomID: roomID, Participant: identity("alice"), JoinedAt: base}
	if err := store.Memberships.Insert(ctx, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := &models.Membership{RoomID: roomID, Participant: identity("alice"), JoinedAt: base.Add(time.Minute)}
	if err := store.Memberships.Insert(ctx, dup); err == nil {
		t.Fatal("second active membership for the same participant should be rejected")
	}

	// After leaving, a fresh row is allowed — that's how rejoin works.
	if err := store.Memberships.Leave(ctx, first.ID, base.Add(time.Hour)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	rejoin := &models.Membership{RoomID: roomID, Participant: identity("alice"), JoinedAt: base.Add(2 * time.Hour)}
	if err := store.Memberships.Insert(ctx, rejoin); err != nil {
		t.Fatalf("rejoin insert: %v", err)
	}
}

func TestLeaveIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	m := &models.Membership{RoomID: uuid.New(), Participant: identity("alice"), JoinedAt: base}
	if err := store.Memberships.Insert(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Memberships.Leave(ctx, m.ID, base.Add(time.Hour)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := store.Memberships.Leave(ctx, m.ID, base.Add(2*time.Hour)); err != nil {
		t.Fatalf("second leave: %v", err)
	}

	got, err := store.Memberships.GetByID(ctx, m.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LeftAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("LeftAt moved to %v, want the original %v", got.LeftAt, base.Add(time.Hour))
	}
}

func TestSetLastReadAtMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	m := &models.Membership{RoomID: uuid.New(), Participant: identity("alice"), JoinedAt: base}
	if err := store.Memberships.Insert(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Memberships.SetLastReadAt(ctx, m.ID, base.Add(time.Hour)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Memberships.SetLastReadAt(ctx, m.ID, base.Add(time.Minute)); err != nil {
		t.Fatalf("stale set: %v", err)
	}

	got, err := store.Memberships.GetByID(ctx, m.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastReadAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("LastReadAt = %v, want %v", got.LastReadAt, base.Add(time.Hour))
	}
}

func TestSoftDeleteScrubsBody(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	msg := &models.Message{RoomID: uuid.New(), Body: "secret", CreatedAt: base}
	if err := store.Messages.Insert(ctx, msg); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Messages.SoftDelete(ctx, msg.ID, base.Add(time.Minute)); err != nil {
		t.Fatalf("delete: %v", err)
	}

	raw := store.Messages.st.messages[msg.ID]
	if raw.DeletedAt == nil {
		t.Fatal("DeletedAt not set")
	}
	if raw.Body != "" {
		t.Fatalf("body survived the delete: %q", raw.Body)
	}

	// Idempotent, and the scrub time sticks.
	if err := store.Messages.SoftDelete(ctx, msg.ID, base.Add(time.Hour)); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	raw = store.Messages.st.messages[msg.ID]
	if !raw.DeletedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("DeletedAt moved to %v", raw.DeletedAt)
	}

	if got, _ := store.Messages.GetByID(ctx, msg.ID); got != nil {
		t.Fatal("deleted message should not resolve")
	}
}

func TestListVisibleOrderAndCursor(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	roomID := uuid.New()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 5; i++ {
		msg := &models.Message{RoomID: roomID, Body: "m", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Messages.Insert(ctx, msg); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		ids = append(ids, msg.ID)
	}
	open := []models.Window{{From: base}}

	page, err := store.Messages.ListVisible(ctx, roomID, open, 0, 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[4] || page[1].ID != ids[3] {
		t.Fatalf("first page = %v, want newest two", page)
	}

	page, err = store.Messages.ListVisible(ctx, roomID, open, page[1].ID, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Fatalf("second page = %v, want the middle two", page)
	}
}

func TestRoomTouchOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	room := &models.Room{ID: uuid.New(), CreatedAt: base, UpdatedAt: base}
	if err := store.Rooms.Create(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Rooms.Touch(ctx, room.ID, base.Add(time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := store.Rooms.Touch(ctx, room.ID, base.Add(time.Minute)); err != nil {
		t.Fatalf("stale touch: %v", err)
	}

	got, err := store.Rooms.GetByID(ctx, room.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, base.Add(time.Hour))
	}
}

func TestCreateWithMembershipsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	room := &models.Room{ID: uuid.New(), CreatedAt: base, UpdatedAt: base}
	bad := []*models.Membership{
		{RoomID: room.ID, Participant: identity("alice"), Role: models.RoleAdmin, JoinedAt: base},
		{RoomID: room.ID, Participant: identity("alice"), Role: models.RoleMember, JoinedAt: base},
	}
	if err := store.Rooms.CreateWithMemberships(ctx, room, bad); err == nil {
		t.Fatal("duplicate participant in the batch should be rejected")
	}
	if got, err := store.Rooms.GetByID(ctx, room.ID); err != nil || got != nil {
		t.Fatalf("room persisted despite failed batch: %v, %v", got, err)
	}
	rows, err := store.Memberships.ListByRoom(ctx, room.ID, true)
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("membership rows persisted despite failed batch: %d", len(rows))
	}

	// A clean batch lands the room and every row together.
	good := []*models.Membership{
		{RoomID: room.ID, Participant: identity("alice"), Role: models.RoleAdmin, JoinedAt: base},
		{RoomID: room.ID, Participant: identity("bob"), Role: models.RoleMember, JoinedAt: base},
	}
	if err := store.Rooms.CreateWithMemberships(ctx, room, good); err != nil {
		t.Fatalf("create with memberships: %v", err)
	}
	if got, err := store.Rooms.GetByID(ctx, room.ID); err != nil || got == nil {
		t.Fatalf("room missing after batch: %v", err)
	}
	rows, err = store.Memberships.ListByRoom(ctx, room.ID, true)
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("membership rows = %d, want 2", len(rows))
	}
}

func TestUserEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.Users.Create(ctx, &models.User{Email: "a@example.com", DisplayName: "A"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Users.Create(ctx, &models.User{Email: "a@example.com", DisplayName: "A2"}); err == nil {
		t.Fatal("duplicate email should be rejected")
	}
}
