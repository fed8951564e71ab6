package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/models"
	"github.com/lalith-99/parley/internal/repository"
	"go.uber.org/zap"
)

// MessageSender is the capability an actor needs to author messages.
// models.Identity implements it (a compound identity that may own
// memberships in many rooms and open new ones), and *models.Membership
// implements it (an existing row sending on its own behalf, which may
// not open rooms). The core depends only on this interface, never on
// concrete host types.
type MessageSender interface {
	SenderIdentity() models.Identity
	CanCreateRooms() bool
}

// Options is the process-wide messaging policy, fixed at construction.
// The knobs mirror the package configuration surface; see
// internal/config.
type Options struct {
	// Policy breaks ties between multiple exact-match rooms.
	Policy MatchPolicy

	// SeeMessagesBeforeJoined lifts the join-time lower bound when
	// listing room history. Off by default: new participants do not see
	// the past.
	SeeMessagesBeforeJoined bool

	// CreateSystemMessages inserts an authorless message into the room
	// when participants join or leave.
	CreateSystemMessages bool

	// SenderReadsOwnMessages advances the sender's read marker to each
	// message they send — sending implies having read up to that point.
	SenderReadsOwnMessages bool

	// Now is the clock; tests override it. Nil means time.Now.
	Now func() time.Time
}

// RoomConfig carries the fields a caller may set when a new room is
// created (directly or implicitly by SendToIdentities).
type RoomConfig struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// Service is the messaging coordinator: it orchestrates sends, reads,
// and membership changes over the stores, enforces the membership
// preconditions, and emits events to the sink. Every operation
// completes or fails atomically from the caller's perspective, and
// nothing here retries: sends have side effects (event emission) that
// must not be duplicated.
type Service struct {
	rooms       repository.RoomStore
	memberships repository.MembershipStore
	messages    repository.MessageStore
	identities  repository.IdentityProvider
	resolver    *Resolver
	sink        EventSink
	logger      *zap.Logger
	opts        Options
}

func NewService(
	rooms repository.RoomStore,
	memberships repository.MembershipStore,
	messages repository.MessageStore,
	identities repository.IdentityProvider,
	sink EventSink,
	logger *zap.Logger,
	opts Options,
) *Service {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		rooms:       rooms,
		memberships: memberships,
		messages:    messages,
		identities:  identities,
		resolver:    NewResolver(memberships, opts.Policy),
		sink:        sink,
		logger:      logger,
		opts:        opts,
	}
}

// Resolver exposes the service's room resolver (same policy, same
// stores) for callers that only need the pure lookup.
func (s *Service) Resolver() *Resolver { return s.resolver }

func (s *Service) now() time.Time { return s.opts.Now() }

// ---------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------

// SendToRoom delivers a message into a room the sender is an active
// member of. Flow: resolve the room (missing or deleted fails with
// ErrRoomNotFound), resolve the sender's active membership (fail with
// ErrNotAnActiveMember if there is none), validate the optional reply
// reference, insert, bump the room's UpdatedAt, optionally advance the
// sender's read marker, and emit MessageCreated.
func (s *Service) SendToRoom(ctx context.Context, sender MessageSender, roomID uuid.UUID, body string, replyTo *int64) (*models.Message, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("resolve room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	m, err := s.memberships.FindActive(ctx, roomID, sender.SenderIdentity())
	if err != nil {
		return nil, fmt.Errorf("resolve sender membership: %w", err)
	}
	if m == nil {
		return nil, ErrNotAnActiveMember
	}

	if replyTo != nil {
		parent, err := s.messages.GetByID(ctx, *replyTo)
		if err != nil {
			return nil, fmt.Errorf("resolve reply target: %w", err)
		}
		if parent == nil {
			return nil, ErrMessageNotFound
		}
		if parent.RoomID != roomID {
			return nil, ErrReplyOutsideRoom
		}
	}

	now := s.now()
	msg := &models.Message{
		RoomID:             roomID,
		SenderMembershipID: &m.ID,
		Body:               body,
		ReplyToID:          replyTo,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := s.rooms.Touch(ctx, roomID, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("touch room: %w", err)
	}

	// Sending implies having read your own message.
	if s.opts.SenderReadsOwnMessages {
		if err := s.memberships.SetLastReadAt(ctx, m.ID, msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("advance sender read marker: %w", err)
		}
	}

	s.sink.MessageCreated(ctx, *msg)
	s.logger.Debug("message sent",
		zap.String("room_id", roomID.String()),
		zap.Int64("message_id", msg.ID),
	)
	return msg, nil
}

// SendToIdentities delivers a message to a set of recipients, resolving
// {sender} ∪ recipients to their canonical room first. On a resolver
// miss (or with forceNewRoom) a new room is created with the sender as
// admin and each recipient as member — but only a compound sender may
// do that; a bare membership gets ErrCannotCreateRoomFromMembership.
func (s *Service) SendToIdentities(ctx context.Context, sender MessageSender, recipients []models.Identity, body string, forceNewRoom bool, cfg RoomConfig) (*models.Message, error) {
	all := append([]models.Identity{sender.SenderIdentity()}, recipients...)

	var room *models.Room
	if !forceNewRoom {
		found, err := s.resolver.FindExactRoom(ctx, all)
		if err != nil && !errors.Is(err, ErrRoomNotFound) {
			return nil, err
		}
		room = found
	}

	if room == nil {
		if !sender.CanCreateRooms() {
			return nil, ErrCannotCreateRoomFromMembership
		}
		created, err := s.createRoomWithParticipants(ctx, sender.SenderIdentity(), recipients, cfg)
		if err != nil {
			return nil, err
		}
		room = created
	}

	return s.SendToRoom(ctx, sender, room.ID, body, nil)
}

// CreateRoom creates a room with the creator as its sole admin
// participant. Recipients join later via AddParticipant or
// SyncParticipants.
func (s *Service) CreateRoom(ctx context.Context, creator MessageSender, cfg RoomConfig) (*models.Room, error) {
	if !creator.CanCreateRooms() {
		return nil, ErrCannotCreateRoomFromMembership
	}
	return s.createRoomWithParticipants(ctx, creator.SenderIdentity(), nil, cfg)
}

// GetOrCreatePersonalRoom returns the room containing exactly the one
// identity, creating it on first use. Useful for sending an identity
// notifications through the same pipeline as everything else.
func (s *Service) GetOrCreatePersonalRoom(ctx context.Context, identity models.Identity, cfg RoomConfig) (*models.Room, error) {
	room, err := s.resolver.FindExactRoom(ctx, []models.Identity{identity})
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return nil, err
	}

	now := s.now()
	created := &models.Room{
		ID:          uuid.New(),
		Name:        cfg.Name,
		Description: cfg.Description,
		Metadata:    cfg.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m := newMembership(created.ID, identity, models.RoleMember, now)
	if err := s.rooms.CreateWithMemberships(ctx, created, []*models.Membership{m}); err != nil {
		return nil, fmt.Errorf("create personal room: %w", err)
	}
	s.sink.ParticipantAdded(ctx, *m)
	return created, nil
}

// createRoomWithParticipants builds a room, the creator's admin
// membership, and one member membership per recipient in a single
// store write: a failure leaves no partial active set behind for the
// resolver to match. Events fire only after the write lands.
func (s *Service) createRoomWithParticipants(ctx context.Context, creator models.Identity, recipients []models.Identity, cfg RoomConfig) (*models.Room, error) {
	now := s.now()
	room := &models.Room{
		ID:          uuid.New(),
		Name:        cfg.Name,
		Description: cfg.Description,
		Metadata:    cfg.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	members := []*models.Membership{newMembership(room.ID, creator, models.RoleAdmin, now)}
	for _, rcpt := range dedupeIdentities(recipients) {
		if rcpt == creator {
			continue
		}
		members = append(members, newMembership(room.ID, rcpt, models.RoleMember, now))
	}

	if err := s.rooms.CreateWithMemberships(ctx, room, members); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	for _, m := range members {
		s.sink.ParticipantAdded(ctx, *m)
	}

	s.logger.Info("room created",
		zap.String("room_id", room.ID.String()),
		zap.Int("participants", len(members)),
	)
	return room, nil
}

func newMembership(roomID uuid.UUID, identity models.Identity, role models.Role, at time.Time) *models.Membership {
	return &models.Membership{
		ID:          uuid.New(),
		RoomID:      roomID,
		Participant: identity,
		Role:        role,
		JoinedAt:    at,
	}
}

func (s *Service) insertMembership(ctx context.Context, roomID uuid.UUID, identity models.Identity, role models.Role, at time.Time) (*models.Membership, error) {
	m := newMembership(roomID, identity, role, at)
	if err := s.memberships.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	s.sink.ParticipantAdded(ctx, *m)
	return m, nil
}

// ---------------------------------------------------------------------
// Read state
// ---------------------------------------------------------------------

// MarkRoomRead sets the actor's read marker in the room to now.
// Monotonic: moving backward is a no-op, not an error.
func (s *Service) MarkRoomRead(ctx context.Context, actor MessageSender, roomID uuid.UUID) error {
	return s.MarkReadUntil(ctx, actor, roomID, s.now())
}

// MarkMessageRead sets the actor's read marker in the message's room to
// the message's creation time.
func (s *Service) MarkMessageRead(ctx context.Context, actor MessageSender, messageID int64) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("resolve message: %w", err)
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	return s.MarkReadUntil(ctx, actor, msg.RoomID, msg.CreatedAt)
}

// MarkReadUntil sets the actor's read marker in the room to an explicit
// instant, subject to the same monotonic rule.
func (s *Service) MarkReadUntil(ctx context.Context, actor MessageSender, roomID uuid.UUID, at time.Time) error {
	m, err := s.memberships.FindActive(ctx, roomID, actor.SenderIdentity())
	if err != nil {
		return fmt.Errorf("resolve membership: %w", err)
	}
	if m == nil {
		return ErrNotAnActiveMember
	}
	if err := s.memberships.SetLastReadAt(ctx, m.ID, at); err != nil {
		return fmt.Errorf("set read marker: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------
// Membership changes
// ---------------------------------------------------------------------

// AddParticipant adds an identity to a room with the given role.
// Idempotent on the active set: if the identity already holds an active
// membership, that membership is returned unchanged and no event fires.
func (s *Service) AddParticipant(ctx context.Context, roomID uuid.UUID, identity models.Identity, role models.Role) (*models.Membership, error) {
	if role == "" {
		role = models.RoleMember
	}
	existing, err := s.memberships.FindActive(ctx, roomID, identity)
	if err != nil {
		return nil, fmt.Errorf("check existing membership: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	m, err := s.insertMembership(ctx, roomID, identity, role, s.now())
	if err != nil {
		return nil, err
	}
	s.systemMessage(ctx, roomID, fmt.Sprintf("%s joined", s.displayNameFor(ctx, *m)))
	return m, nil
}

// RemoveParticipant departs an identity from a room, setting LeftAt.
// One-way: the row is never restored; rejoining creates a new one.
// Fails with ErrNotAnActiveMember if the identity is not currently in
// the room.
func (s *Service) RemoveParticipant(ctx context.Context, roomID uuid.UUID, identity models.Identity) (*models.Membership, error) {
	m, err := s.memberships.FindActive(ctx, roomID, identity)
	if err != nil {
		return nil, fmt.Errorf("resolve membership: %w", err)
	}
	if m == nil {
		return nil, ErrNotAnActiveMember
	}

	now := s.now()
	if err := s.memberships.Leave(ctx, m.ID, now); err != nil {
		return nil, fmt.Errorf("leave room: %w", err)
	}
	m.LeftAt = &now
	s.sink.ParticipantRemoved(ctx, *m)
	s.systemMessage(ctx, roomID, fmt.Sprintf("%s left", s.displayNameFor(ctx, *m)))
	return m, nil
}

// SyncParticipants drives the room's active membership set to exactly
// the desired set: missing identities are added with the given role,
// extras are departed, everyone else is left untouched. Returns the two
// diff lists. Running it twice with the same desired set is idempotent
// — the second call's lists are both empty.
//
// The diff is a single pass over each set keyed by identity — O(n+m),
// not the O(n·m) scan the obvious nested loop would be.
func (s *Service) SyncParticipants(ctx context.Context, roomID uuid.UUID, desired []models.Identity, role models.Role) (added, removed []models.Membership, err error) {
	current, err := s.memberships.ListByRoom(ctx, roomID, false)
	if err != nil {
		return nil, nil, fmt.Errorf("list current participants: %w", err)
	}

	want := make(map[models.Identity]struct{}, len(desired))
	for _, id := range dedupeIdentities(desired) {
		want[id] = struct{}{}
	}
	have := make(map[models.Identity]*models.Membership, len(current))
	for i := range current {
		have[current[i].Participant] = &current[i]
	}

	for id := range want {
		if _, ok := have[id]; ok {
			continue
		}
		m, err := s.AddParticipant(ctx, roomID, id, role)
		if err != nil {
			return added, removed, err
		}
		added = append(added, *m)
	}
	for id, m := range have {
		if _, ok := want[id]; ok {
			continue
		}
		departed, err := s.RemoveParticipant(ctx, roomID, m.Participant)
		if err != nil {
			return added, removed, err
		}
		removed = append(removed, *departed)
	}
	return added, removed, nil
}

// ---------------------------------------------------------------------
// Deletion
// ---------------------------------------------------------------------

// DeleteMessage soft-deletes a message: DeletedAt is set and the body
// scrubbed in the same store write. The actor must be an active member
// of the room and either the message's author or an admin.
func (s *Service) DeleteMessage(ctx context.Context, actor MessageSender, messageID int64) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("resolve message: %w", err)
	}
	if msg == nil {
		return ErrMessageNotFound
	}

	m, err := s.memberships.FindActive(ctx, msg.RoomID, actor.SenderIdentity())
	if err != nil {
		return fmt.Errorf("resolve membership: %w", err)
	}
	if m == nil {
		return ErrNotAnActiveMember
	}
	own := msg.SenderMembershipID != nil && *msg.SenderMembershipID == m.ID
	if !own && !m.CanManageParticipants() {
		return ErrNotAllowed
	}

	if err := s.messages.SoftDelete(ctx, messageID, s.now()); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// RestoreMessage always fails: scrubbing on delete destroys the body,
// so there is nothing to restore. The method exists so the refusal is
// loud rather than a silent absence.
func (s *Service) RestoreMessage(ctx context.Context, messageID int64) error {
	return ErrRestoreUnsupported
}

// DeleteRoom soft-deletes a room. The actor must hold an active admin
// membership. A deleted room stops resolving, drops out of room lists
// and the unread sweep, and rejects further sends with ErrRoomNotFound.
// One-way, like message deletion.
func (s *Service) DeleteRoom(ctx context.Context, actor MessageSender, roomID uuid.UUID) error {
	m, err := s.memberships.FindActive(ctx, roomID, actor.SenderIdentity())
	if err != nil {
		return fmt.Errorf("resolve membership: %w", err)
	}
	if m == nil {
		return ErrNotAnActiveMember
	}
	if !m.CanManageParticipants() {
		return ErrNotAllowed
	}

	if err := s.rooms.SoftDelete(ctx, roomID, s.now()); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	s.logger.Info("room deleted", zap.String("room_id", roomID.String()))
	return nil
}

// ---------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------

// RoomSummary is one entry in an identity's room list.
type RoomSummary struct {
	Room          models.Room       `json:"room"`
	Membership    models.Membership `json:"membership"`
	UnreadCount   int               `json:"unread_count"`
	LatestMessage *models.Message   `json:"latest_message,omitempty"`
}

// RoomsFor lists the rooms the identity is (or, with includeDeparted,
// was) in, each with the unread count and the latest message visible to
// that membership.
func (s *Service) RoomsFor(ctx context.Context, identity models.Identity, includeDeparted bool) ([]RoomSummary, error) {
	memberships, err := s.memberships.ListForIdentity(ctx, identity, includeDeparted)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	out := make([]RoomSummary, 0, len(memberships))
	for _, m := range memberships {
		room, err := s.rooms.GetByID(ctx, m.RoomID)
		if err != nil {
			return nil, fmt.Errorf("load room: %w", err)
		}
		if room == nil {
			continue
		}
		unread, err := s.messages.CountUnread(ctx, m, false)
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}
		latest, err := s.messages.LatestVisible(ctx, m.RoomID, []models.Window{WindowOf(m, s.opts.SeeMessagesBeforeJoined)})
		if err != nil {
			return nil, fmt.Errorf("load latest message: %w", err)
		}
		out = append(out, RoomSummary{
			Room:          *room,
			Membership:    m,
			UnreadCount:   unread,
			LatestMessage: latest,
		})
	}
	return out, nil
}

// RoomMessages returns the slice of the room's history the identity is
// authorized to see: the union of the visibility windows of every
// membership row the identity ever held there. Departed participants
// keep their history; identities that were never in the room get
// ErrNotAParticipant.
func (s *Service) RoomMessages(ctx context.Context, identity models.Identity, roomID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	rows, err := s.memberships.ListForIdentityInRoom(ctx, roomID, identity)
	if err != nil {
		return nil, fmt.Errorf("list memberships in room: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotAParticipant
	}

	windows := make([]models.Window, 0, len(rows))
	for _, m := range rows {
		windows = append(windows, WindowOf(m, s.opts.SeeMessagesBeforeJoined))
	}
	msgs, err := s.messages.ListVisible(ctx, roomID, windows, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Participants returns the room's membership rows, active only unless
// includeDeparted is set. The caller must be or have been a participant.
func (s *Service) Participants(ctx context.Context, identity models.Identity, roomID uuid.UUID, includeDeparted bool) ([]models.Membership, error) {
	own, err := s.memberships.ListForIdentityInRoom(ctx, roomID, identity)
	if err != nil {
		return nil, fmt.Errorf("list memberships in room: %w", err)
	}
	if len(own) == 0 {
		return nil, ErrNotAParticipant
	}
	return s.memberships.ListByRoom(ctx, roomID, includeDeparted)
}

// ---------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------

// systemMessage inserts an authorless message when configured to.
// Failures are logged, not returned: the membership change already
// happened and a missing notice must not roll it back.
func (s *Service) systemMessage(ctx context.Context, roomID uuid.UUID, body string) {
	if !s.opts.CreateSystemMessages {
		return
	}
	now := s.now()
	msg := &models.Message{
		RoomID:    roomID,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		s.logger.Warn("system message not recorded",
			zap.String("room_id", roomID.String()),
			zap.Error(err),
		)
		return
	}
	s.sink.MessageCreated(ctx, *msg)
}

// displayNameFor resolves a membership's presentation name: the
// membership's own display name wins, then the identity provider's,
// then the raw identity key.
func (s *Service) displayNameFor(ctx context.Context, m models.Membership) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if s.identities != nil {
		profile, err := s.identities.Resolve(ctx, m.Participant)
		if err == nil && profile != nil && profile.DisplayName != "" {
			return profile.DisplayName
		}
	}
	return m.Participant.Key()
}
