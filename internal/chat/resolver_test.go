package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/models"
	"github.com/lalith-99/parley/internal/repository/memory"
)

// seedRoom creates a room with the given active participants directly
// in the store, bypassing the service.
func seedRoom(t *testing.T, store *memory.Store, createdAt time.Time, participants ...models.Identity) models.Room {
	t.Helper()
	ctx := context.Background()
	room := &models.Room{
		ID:        uuid.New(),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := store.Rooms.Create(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, p := range participants {
		m := &models.Membership{
			RoomID:      room.ID,
			Participant: p,
			Role:        models.RoleMember,
			JoinedAt:    createdAt,
		}
		if err := store.Memberships.Insert(ctx, m); err != nil {
			t.Fatalf("insert membership: %v", err)
		}
	}
	return *room
}

func TestFindExactRoomMatchesFullSetOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	resolver := chat.NewResolver(store.Memberships, chat.MatchLatestUpdated)

	alice, bob, carol := user("alice"), user("bob"), user("carol")
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	room := seedRoom(t, store, base, alice, bob)

	got, err := resolver.FindExactRoom(ctx, []models.Identity{alice, bob})
	if err != nil {
		t.Fatalf("resolve {alice,bob}: %v", err)
	}
	if got.ID != room.ID {
		t.Fatalf("resolved room %s, want %s", got.ID, room.ID)
	}

	// Order and duplicates don't matter: the set names the room.
	got, err = resolver.FindExactRoom(ctx, []models.Identity{bob, alice, bob})
	if err != nil {
		t.Fatalf("resolve {bob,alice,bob}: %v", err)
	}
	if got.ID != room.ID {
		t.Fatalf("resolved room %s, want %s", got.ID, room.ID)
	}

	// Supersets and subsets miss.
	if _, err := resolver.FindExactRoom(ctx, []models.Identity{alice, bob, carol}); !errors.Is(err, chat.ErrRoomNotFound) {
		t.Fatalf("superset should miss, got %v", err)
	}
	if _, err := resolver.FindExactRoom(ctx, []models.Identity{alice}); !errors.Is(err, chat.ErrRoomNotFound) {
		t.Fatalf("subset should miss, got %v", err)
	}
}

func TestFindExactRoomTracksMembershipChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	resolver := chat.NewResolver(store.Memberships, chat.MatchLatestUpdated)

	alice, bob, carol := user("alice"), user("bob"), user("carol")
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	room := seedRoom(t, store, base, alice, bob)

	// Carol joins: the room now resolves for the three-way set and no
	// longer for the original pair.
	if err := store.Memberships.Insert(ctx, &models.Membership{
		RoomID:      room.ID,
		Participant: carol,
		Role:        models.RoleMember,
		JoinedAt:    base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("insert carol: %v", err)
	}

	if _, err := resolver.FindExactRoom(ctx, []models.Identity{alice, bob}); !errors.Is(err, chat.ErrRoomNotFound) {
		t.Fatalf("pair should no longer resolve, got %v", err)
	}
	got, err := resolver.FindExactRoom(ctx, []models.Identity{alice, bob, carol})
	if err != nil {
		t.Fatalf("resolve trio: %v", err)
	}
	if got.ID != room.ID {
		t.Fatalf("resolved room %s, want %s", got.ID, room.ID)
	}

	// Carol leaves: the pair resolves again, departed rows don't count.
	m, err := store.Memberships.FindActive(ctx, room.ID, carol)
	if err != nil || m == nil {
		t.Fatalf("find carol: %v", err)
	}
	if err := store.Memberships.Leave(ctx, m.ID, base.Add(2*time.Hour)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := resolver.FindExactRoom(ctx, []models.Identity{alice, bob}); err != nil {
		t.Fatalf("pair should resolve after carol left: %v", err)
	}
}

func TestFindExactRoomMixedKinds(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	resolver := chat.NewResolver(store.Memberships, chat.MatchLatestUpdated)

	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	// Same raw ID, different kinds: these are distinct participants.
	seedRoom(t, store, base, user("42"), bot("42"))

	if _, err := resolver.FindExactRoom(ctx, []models.Identity{user("42"), bot("42")}); err != nil {
		t.Fatalf("mixed-kind set should resolve: %v", err)
	}
	if _, err := resolver.FindExactRoom(ctx, []models.Identity{user("42"), user("42")}); !errors.Is(err, chat.ErrRoomNotFound) {
		t.Fatalf("kind must distinguish identities, got %v", err)
	}
}

func TestFindExactRoomEmptySet(t *testing.T) {
	store := memory.NewStore()
	resolver := chat.NewResolver(store.Memberships, chat.MatchLatestUpdated)

	if _, err := resolver.FindExactRoom(context.Background(), nil); !errors.Is(err, chat.ErrRoomNotFound) {
		t.Fatalf("empty set should miss, got %v", err)
	}
}

func TestFindExactRoomTieBreak(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	alice, bob := user("alice"), user("bob")
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	older := seedRoom(t, store, base, alice, bob)
	newer := seedRoom(t, store, base.Add(time.Hour), alice, bob)

	// The older room saw activity more recently.
	if err := store.Rooms.Touch(ctx, older.ID, base.Add(2*time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}

	latest := chat.NewResolver(store.Memberships, chat.MatchLatestUpdated)
	got, err := latest.FindExactRoom(ctx, []models.Identity{alice, bob})
	if err != nil {
		t.Fatalf("resolve (latest): %v", err)
	}
	if got.ID != older.ID {
		t.Fatalf("latest-updated policy picked %s, want the recently touched room %s", got.ID, older.ID)
	}

	first := chat.NewResolver(store.Memberships, chat.MatchFirstCreated)
	got, err = first.FindExactRoom(ctx, []models.Identity{alice, bob})
	if err != nil {
		t.Fatalf("resolve (first): %v", err)
	}
	if got.ID != older.ID {
		t.Fatalf("first-created policy picked %s, want the oldest room %s", got.ID, older.ID)
	}

	// Make the newer room the most recently updated: the policies now
	// disagree, which is the point of having one.
	if err := store.Rooms.Touch(ctx, newer.ID, base.Add(3*time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err = latest.FindExactRoom(ctx, []models.Identity{alice, bob})
	if err != nil {
		t.Fatalf("resolve (latest): %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("latest-updated policy picked %s, want %s", got.ID, newer.ID)
	}
	got, err = first.FindExactRoom(ctx, []models.Identity{alice, bob})
	if err != nil {
		t.Fatalf("resolve (first): %v", err)
	}
	if got.ID != older.ID {
		t.Fatalf("first-created policy picked %s, want %s", got.ID, older.ID)
	}
}

func TestParseMatchPolicy(t *testing.T) {
	if chat.ParseMatchPolicy("first") != chat.MatchFirstCreated {
		t.Error(`"first" should parse to MatchFirstCreated`)
	}
	if chat.ParseMatchPolicy("latest") != chat.MatchLatestUpdated {
		t.Error(`"latest" should parse to MatchLatestUpdated`)
	}
	if chat.ParseMatchPolicy("") != chat.MatchLatestUpdated {
		t.Error("unknown values should fall back to the default")
	}
}
