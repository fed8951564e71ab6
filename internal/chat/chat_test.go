package chat_test

import (
	"testing"
	"time"

	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/models"
	"github.com/lalith-99/parley/internal/repository/memory"
)

// clock is a controllable time source for the service under test.
type clock struct {
	t time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

// newFixture builds a service over a fresh in-memory store. The
// caller's Options are honored except for the clock, which is always
// the fixture's.
func newFixture(t *testing.T, opts chat.Options) (*chat.Service, *memory.Store, *clock) {
	t.Helper()
	ck := newClock()
	opts.Now = ck.now
	store := memory.NewStore()
	svc := chat.NewService(store.Rooms, store.Memberships, store.Messages, store.Users, nil, nil, opts)
	return svc, store, ck
}

func user(id string) models.Identity {
	return models.Identity{Kind: models.KindUser, ID: id}
}

func bot(id string) models.Identity {
	return models.Identity{Kind: models.KindBot, ID: id}
}
