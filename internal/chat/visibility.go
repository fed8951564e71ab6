package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/models"
)

// Visibility evaluator.
//
// A participant's view of a room is bounded by their membership: they
// see messages created at or after they joined, and — once they leave —
// nothing created after they left. Soft-deleted messages are invisible
// to everyone. All functions here are pure; the stores mirror the same
// rules in SQL for bulk queries, and the in-memory store applies these
// predicates directly.

// WindowOf derives the membership's visibility window. With
// includeBeforeJoined the lower bound is lifted (the participant may
// scroll back past their own join), but the leave-time upper bound
// still applies.
func WindowOf(m models.Membership, includeBeforeJoined bool) models.Window {
	w := models.Window{From: m.JoinedAt, To: m.LeftAt}
	if includeBeforeJoined {
		w.From = time.Time{}
	}
	return w
}

// IsVisible reports whether a single message is visible to a single
// membership. Rules, in order: deleted messages are never visible; the
// message must belong to the membership's room; and its creation time
// must fall inside the membership's window.
func IsVisible(msg models.Message, m models.Membership) bool {
	if msg.IsDeleted() {
		return false
	}
	if msg.RoomID != m.RoomID {
		return false
	}
	return WindowOf(m, false).Contains(msg.CreatedAt)
}

// VisibilityPredicate returns the single-membership filter as a
// function, for callers that scan message sets in memory.
func VisibilityPredicate(m models.Membership, includeBeforeJoined bool) func(models.Message) bool {
	w := WindowOf(m, includeBeforeJoined)
	return func(msg models.Message) bool {
		return !msg.IsDeleted() && msg.RoomID == m.RoomID && w.Contains(msg.CreatedAt)
	}
}

// WindowsFor is the aggregate form of the evaluator: given every
// membership row an identity holds (across rooms, including departed
// rows), it returns the visibility windows grouped by room. A
// participant who left a room and rejoined gets two disjoint windows
// there — the union of both, never one range spanning first join to
// last activity.
func WindowsFor(memberships []models.Membership, includeBeforeJoined bool) map[uuid.UUID][]models.Window {
	out := make(map[uuid.UUID][]models.Window, len(memberships))
	for _, m := range memberships {
		out[m.RoomID] = append(out[m.RoomID], WindowOf(m, includeBeforeJoined))
	}
	return out
}

// VisibleInAny reports whether the message falls inside any of the
// given windows. Deleted messages never do.
func VisibleInAny(msg models.Message, windows []models.Window) bool {
	if msg.IsDeleted() {
		return false
	}
	for _, w := range windows {
		if w.Contains(msg.CreatedAt) {
			return true
		}
	}
	return false
}

// UnreadPredicate returns the filter the unread accounting is defined
// by: the message is visible to the membership, was not sent by it,
// and was created after its read marker (or the membership never
// read). System messages only count when includeSystem is set.
func UnreadPredicate(m models.Membership, includeSystem bool) func(models.Message) bool {
	visible := VisibilityPredicate(m, false)
	return func(msg models.Message) bool {
		if !visible(msg) {
			return false
		}
		if msg.SenderMembershipID == nil {
			if !includeSystem {
				return false
			}
		} else if *msg.SenderMembershipID == m.ID {
			return false
		}
		return m.LastReadAt == nil || msg.CreatedAt.After(*m.LastReadAt)
	}
}
