package chat

import (
	"context"
	"fmt"
	"sort"

	"github.com/lalith-99/parley/internal/models"
	"github.com/lalith-99/parley/internal/repository"
)

// MatchPolicy decides which room wins when more than one room's active
// membership set matches a participant set exactly. Duplicates are
// structurally possible — two racing sends with no existing room each
// create one, and the generic room-creation path can build a second
// room over the same set — so the tie-break is an explicit contract,
// not an accident.
//
// The policy is process-wide configuration fixed at service
// construction, never a per-call parameter.
type MatchPolicy int

const (
	// MatchLatestUpdated selects the most recently updated matching
	// room. The default: sends land in the room the participants last
	// used.
	MatchLatestUpdated MatchPolicy = iota

	// MatchFirstCreated selects the oldest matching room.
	MatchFirstCreated
)

// ParseMatchPolicy maps a config string to a policy. Unknown values
// fall back to the default.
func ParseMatchPolicy(s string) MatchPolicy {
	if s == "first" {
		return MatchFirstCreated
	}
	return MatchLatestUpdated
}

func (p MatchPolicy) String() string {
	if p == MatchFirstCreated {
		return "first"
	}
	return "latest"
}

// Resolver maps a set of participant identities to the canonical room
// holding exactly those participants.
type Resolver struct {
	memberships repository.MembershipStore
	policy      MatchPolicy
}

func NewResolver(memberships repository.MembershipStore, policy MatchPolicy) *Resolver {
	return &Resolver{memberships: memberships, policy: policy}
}

// FindExactRoom returns the single room whose current active membership
// set equals the given set exactly — no extra members, none missing.
// Pure read: it never creates state. Returns ErrRoomNotFound on a miss;
// the caller is expected to handle that routinely.
func (r *Resolver) FindExactRoom(ctx context.Context, participants []models.Identity) (*models.Room, error) {
	set := dedupeIdentities(participants)
	if len(set) == 0 {
		return nil, ErrRoomNotFound
	}

	rooms, err := r.memberships.RoomsByExactActiveSet(ctx, set)
	if err != nil {
		return nil, fmt.Errorf("find exact room: %w", err)
	}
	if len(rooms) == 0 {
		return nil, ErrRoomNotFound
	}

	// The store returns candidates in unspecified order; the policy
	// picks the winner here so both implementations behave identically.
	sort.SliceStable(rooms, func(i, j int) bool {
		if r.policy == MatchFirstCreated {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	room := rooms[0]
	return &room, nil
}

// dedupeIdentities collapses repeats while keeping first-seen order.
// {A, B, A} and {A, B} name the same room.
func dedupeIdentities(ids []models.Identity) []models.Identity {
	seen := make(map[models.Identity]struct{}, len(ids))
	out := make([]models.Identity, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
