package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/events"
	"github.com/lalith-99/parley/internal/models"
	"github.com/lalith-99/parley/internal/repository/memory"
	"go.uber.org/zap"
)

// Delivery is synchronous onto the client's buffered channel, so the
// tests can drive the sink methods directly without sockets or pumps.

func recvEnvelope(t *testing.T, ch chan []byte) events.Envelope {
	t.Helper()
	select {
	case payload := <-ch:
		var env events.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		return env
	default:
		t.Fatal("no frame delivered")
		return events.Envelope{}
	}
}

func assertNoFrame(t *testing.T, ch chan []byte) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected frame delivered")
	default:
	}
}

func TestParticipantRemovedReachesTheLeaver(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	h := NewHub(store.Memberships, zap.NewNop())

	roomID := uuid.New()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	alice := models.Identity{Kind: models.KindUser, ID: "alice"}
	bob := models.Identity{Kind: models.KindUser, ID: "bob"}

	aliceRow := &models.Membership{RoomID: roomID, Participant: alice, Role: models.RoleAdmin, JoinedAt: base}
	bobRow := &models.Membership{RoomID: roomID, Participant: bob, Role: models.RoleMember, JoinedAt: base}
	for _, m := range []*models.Membership{aliceRow, bobRow} {
		if err := store.Memberships.Insert(ctx, m); err != nil {
			t.Fatalf("insert membership: %v", err)
		}
	}

	aliceCl := &client{send: make(chan []byte, 1)}
	bobCl := &client{send: make(chan []byte, 1)}
	h.register(alice, aliceCl)
	h.register(bob, bobCl)

	left := base.Add(time.Minute)
	if err := store.Memberships.Leave(ctx, bobRow.ID, left); err != nil {
		t.Fatalf("leave: %v", err)
	}
	departed := *bobRow
	departed.LeftAt = &left
	h.ParticipantRemoved(ctx, departed)

	if env := recvEnvelope(t, aliceCl.send); env.Type != events.TypeParticipantRemoved {
		t.Fatalf("alice got %q, want %q", env.Type, events.TypeParticipantRemoved)
	}
	// The leaver's row is no longer active, but they still get told.
	if env := recvEnvelope(t, bobCl.send); env.Type != events.TypeParticipantRemoved {
		t.Fatalf("bob got %q, want %q", env.Type, events.TypeParticipantRemoved)
	}
}

func TestMessageCreatedSkipsDepartedClients(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	h := NewHub(store.Memberships, zap.NewNop())

	roomID := uuid.New()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	alice := models.Identity{Kind: models.KindUser, ID: "alice"}
	bob := models.Identity{Kind: models.KindUser, ID: "bob"}

	aliceRow := &models.Membership{RoomID: roomID, Participant: alice, Role: models.RoleAdmin, JoinedAt: base}
	bobRow := &models.Membership{RoomID: roomID, Participant: bob, Role: models.RoleMember, JoinedAt: base}
	for _, m := range []*models.Membership{aliceRow, bobRow} {
		if err := store.Memberships.Insert(ctx, m); err != nil {
			t.Fatalf("insert membership: %v", err)
		}
	}
	left := base.Add(time.Minute)
	if err := store.Memberships.Leave(ctx, bobRow.ID, left); err != nil {
		t.Fatalf("leave: %v", err)
	}

	aliceCl := &client{send: make(chan []byte, 1)}
	bobCl := &client{send: make(chan []byte, 1)}
	h.register(alice, aliceCl)
	h.register(bob, bobCl)

	h.MessageCreated(ctx, models.Message{ID: 1, RoomID: roomID, Body: "hi", CreatedAt: base.Add(2 * time.Minute)})

	if env := recvEnvelope(t, aliceCl.send); env.Type != events.TypeMessageCreated {
		t.Fatalf("alice got %q, want %q", env.Type, events.TypeMessageCreated)
	}
	assertNoFrame(t, bobCl.send)
}
