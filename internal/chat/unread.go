package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/models"
)

// Unread accounting.
//
// An unread message, for a membership, is one that the visibility
// evaluator admits, that the membership did not author, and that was
// created after the membership's read marker (or at any time, if it
// never read). System messages are excluded unless asked for. The
// stores evaluate the same predicate (see UnreadPredicate) in bulk.

// UnreadCount returns the membership's unread message count.
func (s *Service) UnreadCount(ctx context.Context, membershipID uuid.UUID, includeSystemMessages bool) (int, error) {
	m, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return 0, fmt.Errorf("resolve membership: %w", err)
	}
	if m == nil {
		return 0, ErrNotAParticipant
	}
	n, err := s.messages.CountUnread(ctx, *m, includeSystemMessages)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// HasUnreadSince reports whether the identity has at least one unread
// message, across any of its active memberships, created within the
// last daysAgo days (0 = today). Backed by a single set-membership
// query — digest scheduling runs this across the whole fleet.
func (s *Service) HasUnreadSince(ctx context.Context, identity models.Identity, daysAgo int, includeSystemMessages bool) (bool, error) {
	since := s.sinceDays(daysAgo)
	ok, err := s.messages.HasUnreadSince(ctx, identity, since, includeSystemMessages)
	if err != nil {
		return false, fmt.Errorf("check unread: %w", err)
	}
	return ok, nil
}

// IdentitiesWithUnreadSince lists the distinct identities that have
// unread messages in the window. The digest sweep iterates this and
// hands each identity to the notification collaborator.
func (s *Service) IdentitiesWithUnreadSince(ctx context.Context, daysAgo int, includeSystemMessages bool) ([]models.Identity, error) {
	since := s.sinceDays(daysAgo)
	ids, err := s.messages.IdentitiesWithUnreadSince(ctx, since, includeSystemMessages)
	if err != nil {
		return nil, fmt.Errorf("list identities with unread: %w", err)
	}
	return ids, nil
}

// sinceDays truncates to the start of the day daysAgo days back, so
// daysAgo=0 means "since midnight today" rather than "since this
// instant".
func (s *Service) sinceDays(daysAgo int) time.Time {
	if daysAgo < 0 {
		daysAgo = 0
	}
	day := s.now().AddDate(0, 0, -daysAgo)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
}
