// Package memory is a mutex-guarded, map-backed implementation of the
// repository interfaces. It enforces the same invariants the Postgres
// schema does (one active membership per room and participant,
// immutable leave times, monotonic read markers, scrub-on-delete) so
// the core behaves identically against either backend. Tests run on
// it; PARLEY_STORE=memory runs the server on it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/models"
	"github.com/lalith-99/parley/internal/repository"
)

// state is the shared backing data. One mutex guards everything: the
// store is for tests and small deployments, not contention tuning.
type state struct {
	mu            sync.RWMutex
	rooms         map[uuid.UUID]models.Room
	memberships   map[uuid.UUID]models.Membership
	messages      map[int64]models.Message
	users         map[uuid.UUID]models.User
	nextMessageID int64
}

// Store bundles the per-entity stores over one shared state, mirroring
// how the postgres package hands out one store per entity over one
// pool.
type Store struct {
	Rooms       *RoomStore
	Memberships *MembershipStore
	Messages    *MessageStore
	Users       *UserStore
}

func NewStore() *Store {
	st := &state{
		rooms:       make(map[uuid.UUID]models.Room),
		memberships: make(map[uuid.UUID]models.Membership),
		messages:    make(map[int64]models.Message),
		users:       make(map[uuid.UUID]models.User),
	}
	return &Store{
		Rooms:       &RoomStore{st},
		Memberships: &MembershipStore{st},
		Messages:    &MessageStore{st},
		Users:       &UserStore{st},
	}
}

var (
	_ repository.RoomStore        = (*RoomStore)(nil)
	_ repository.MembershipStore  = (*MembershipStore)(nil)
	_ repository.MessageStore     = (*MessageStore)(nil)
	_ repository.UserStore        = (*UserStore)(nil)
	_ repository.IdentityProvider = (*UserStore)(nil)
)

// ---------------------------------------------------------------------
// RoomStore
// ---------------------------------------------------------------------

type RoomStore struct{ st *state }

func (s *RoomStore) Create(ctx context.Context, room *models.Room) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	if _, exists := s.st.rooms[room.ID]; exists {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	s.st.rooms[room.ID] = *room
	return nil
}

func (s *RoomStore) CreateWithMemberships(ctx context.Context, room *models.Room, memberships []*models.Membership) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	if _, exists := s.st.rooms[room.ID]; exists {
		return fmt.Errorf("room %s already exists", room.ID)
	}

	// Validate the whole batch before touching the maps: either the
	// room and every membership land, or nothing does.
	seen := make(map[models.Identity]struct{}, len(memberships))
	for _, m := range memberships {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.JoinedAt.IsZero() {
			m.JoinedAt = time.Now()
		}
		if _, dup := seen[m.Participant]; dup {
			return fmt.Errorf("duplicate membership for %s in room %s", m.Participant.Key(), room.ID)
		}
		seen[m.Participant] = struct{}{}
		for _, existing := range s.st.memberships {
			if existing.RoomID == m.RoomID && existing.Participant == m.Participant && existing.LeftAt == nil {
				return fmt.Errorf("active membership for %s in room %s already exists", m.Participant.Key(), m.RoomID)
			}
		}
	}

	s.st.rooms[room.ID] = *room
	for _, m := range memberships {
		s.st.memberships[m.ID] = *m
	}
	return nil
}

func (s *RoomStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	room, ok := s.st.rooms[id]
	if !ok || room.DeletedAt != nil {
		return nil, nil
	}
	out := room
	return &out, nil
}

func (s *RoomStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	room, ok := s.st.rooms[id]
	if !ok {
		return fmt.Errorf("room %s not found", id)
	}
	if at.After(room.UpdatedAt) {
		room.UpdatedAt = at
		s.st.rooms[id] = room
	}
	return nil
}

func (s *RoomStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	room, ok := s.st.rooms[id]
	if !ok {
		return fmt.Errorf("room %s not found", id)
	}
	if room.DeletedAt == nil {
		room.DeletedAt = &at
		room.UpdatedAt = at
		s.st.rooms[id] = room
	}
	return nil
}

// ---------------------------------------------------------------------
// MembershipStore
// ---------------------------------------------------------------------

type MembershipStore struct{ st *state }

func (s *MembershipStore) Insert(ctx context.Context, m *models.Membership) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	// The equivalent of the partial unique index on active rows.
	for _, existing := range s.st.memberships {
		if existing.RoomID == m.RoomID && existing.Participant == m.Participant && existing.LeftAt == nil {
			return fmt.Errorf("active membership for %s in room %s already exists", m.Participant.Key(), m.RoomID)
		}
	}
	s.st.memberships[m.ID] = *m
	return nil
}

func (s *MembershipStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	m, ok := s.st.memberships[id]
	if !ok {
		return nil, nil
	}
	out := m
	return &out, nil
}

func (s *MembershipStore) FindActive(ctx context.Context, roomID uuid.UUID, participant models.Identity) (*models.Membership, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	for _, m := range s.st.memberships {
		if m.RoomID == roomID && m.Participant == participant && m.LeftAt == nil {
			out := m
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MembershipStore) ListByRoom(ctx context.Context, roomID uuid.UUID, includeDeparted bool) ([]models.Membership, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	out := make([]models.Membership, 0)
	for _, m := range s.st.memberships {
		if m.RoomID != roomID {
			continue
		}
		if m.LeftAt != nil && !includeDeparted {
			continue
		}
		out = append(out, m)
	}
	sortMemberships(out)
	return out, nil
}

func (s *MembershipStore) ListForIdentity(ctx context.Context, participant models.Identity, includeDeparted bool) ([]models.Membership, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	out := make([]models.Membership, 0)
	for _, m := range s.st.memberships {
		if m.Participant != participant {
			continue
		}
		if m.LeftAt != nil && !includeDeparted {
			continue
		}
		out = append(out, m)
	}
	sortMemberships(out)
	return out, nil
}

func (s *MembershipStore) ListForIdentityInRoom(ctx context.Context, roomID uuid.UUID, participant models.Identity) ([]models.Membership, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	out := make([]models.Membership, 0)
	for _, m := range s.st.memberships {
		if m.RoomID == roomID && m.Participant == participant {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.After(out[j].JoinedAt) })
	return out, nil
}

func (s *MembershipStore) RoomsByExactActiveSet(ctx context.Context, participants []models.Identity) ([]models.Room, error) {
	want := make(map[models.Identity]struct{}, len(participants))
	for _, id := range participants {
		want[id] = struct{}{}
	}

	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	active := make(map[uuid.UUID]map[models.Identity]struct{})
	for _, m := range s.st.memberships {
		if m.LeftAt != nil {
			continue
		}
		set, ok := active[m.RoomID]
		if !ok {
			set = make(map[models.Identity]struct{})
			active[m.RoomID] = set
		}
		set[m.Participant] = struct{}{}
	}

	out := make([]models.Room, 0)
	for roomID, set := range active {
		if len(set) != len(want) {
			continue
		}
		match := true
		for id := range want {
			if _, ok := set[id]; !ok {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		room, ok := s.st.rooms[roomID]
		if !ok || room.DeletedAt != nil {
			continue
		}
		out = append(out, room)
	}
	return out, nil
}

func (s *MembershipStore) SetLastReadAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	m, ok := s.st.memberships[id]
	if !ok {
		return fmt.Errorf("membership %s not found", id)
	}
	// Monotonic: stale timestamps are dropped, not applied.
	if m.LastReadAt == nil || at.After(*m.LastReadAt) {
		m.LastReadAt = &at
		s.st.memberships[id] = m
	}
	return nil
}

func (s *MembershipStore) Leave(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	m, ok := s.st.memberships[id]
	if !ok {
		return fmt.Errorf("membership %s not found", id)
	}
	// LeftAt, once set, is immutable.
	if m.LeftAt == nil {
		m.LeftAt = &at
		s.st.memberships[id] = m
	}
	return nil
}

// ---------------------------------------------------------------------
// MessageStore
// ---------------------------------------------------------------------

type MessageStore struct{ st *state }

func (s *MessageStore) Insert(ctx context.Context, msg *models.Message) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.nextMessageID++
	msg.ID = s.st.nextMessageID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	s.st.messages[msg.ID] = *msg
	return nil
}

func (s *MessageStore) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	msg, ok := s.st.messages[id]
	if !ok || msg.DeletedAt != nil {
		return nil, nil
	}
	out := msg
	return &out, nil
}

func (s *MessageStore) ListVisible(ctx context.Context, roomID uuid.UUID, windows []models.Window, before int64, limit int) ([]models.Message, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	out := make([]models.Message, 0)
	for _, msg := range s.st.messages {
		if msg.RoomID != roomID {
			continue
		}
		if before > 0 && msg.ID >= before {
			continue
		}
		if !chat.VisibleInAny(msg, windows) {
			continue
		}
		out = append(out, msg)
	}
	sortMessagesDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MessageStore) LatestVisible(ctx context.Context, roomID uuid.UUID, windows []models.Window) (*models.Message, error) {
	msgs, err := s.ListVisible(ctx, roomID, windows, 0, 1)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

func (s *MessageStore) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	msg, ok := s.st.messages[id]
	if !ok {
		return fmt.Errorf("message %d not found", id)
	}
	if msg.DeletedAt != nil {
		return nil
	}
	// Marker and scrub land in the same write.
	msg.DeletedAt = &at
	msg.UpdatedAt = at
	msg.Body = ""
	s.st.messages[id] = msg
	return nil
}

func (s *MessageStore) CountUnread(ctx context.Context, m models.Membership, includeSystem bool) (int, error) {
	pred := chat.UnreadPredicate(m, includeSystem)
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	n := 0
	for _, msg := range s.st.messages {
		if pred(msg) {
			n++
		}
	}
	return n, nil
}

func (s *MessageStore) HasUnreadSince(ctx context.Context, participant models.Identity, since time.Time, includeSystem bool) (bool, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return s.st.hasUnreadSinceLocked(participant, since, includeSystem), nil
}

func (s *MessageStore) IdentitiesWithUnreadSince(ctx context.Context, since time.Time, includeSystem bool) ([]models.Identity, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	seen := make(map[models.Identity]struct{})
	out := make([]models.Identity, 0)
	for _, m := range s.st.memberships {
		if m.LeftAt != nil {
			continue
		}
		if _, done := seen[m.Participant]; done {
			continue
		}
		seen[m.Participant] = struct{}{}
		if s.st.hasUnreadSinceLocked(m.Participant, since, includeSystem) {
			out = append(out, m.Participant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (st *state) hasUnreadSinceLocked(participant models.Identity, since time.Time, includeSystem bool) bool {
	for _, m := range st.memberships {
		if m.Participant != participant || m.LeftAt != nil {
			continue
		}
		if room, ok := st.rooms[m.RoomID]; !ok || room.DeletedAt != nil {
			continue
		}
		pred := chat.UnreadPredicate(m, includeSystem)
		for _, msg := range st.messages {
			if msg.CreatedAt.Before(since) {
				continue
			}
			if pred(msg) {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------
// UserStore (doubles as the identity provider for the "user" kind)
// ---------------------------------------------------------------------

type UserStore struct{ st *state }

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	for _, existing := range s.st.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s already registered", u.Email)
		}
	}
	s.st.users[u.ID] = *u
	return nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	for _, u := range s.st.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, nil
	}
	out := u
	return &out, nil
}

// Resolve maps "user" identities onto the users table. Other kinds are
// unknown here; the host wires richer providers for them.
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

// ---------------------------------------------------------------------
// Sorting helpers
// ---------------------------------------------------------------------

func sortMemberships(ms []models.Membership) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].JoinedAt.Equal(ms[j].JoinedAt) {
			return ms[i].JoinedAt.Before(ms[j].JoinedAt)
		}
		return ms[i].ID.String() < ms[j].ID.String()
	})
}

// Newest first: creation time is the ordering key, message ID breaks
// ties by insertion order.
func sortMessagesDesc(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return msgs[i].ID > msgs[j].ID
	})
}
