package chat

import (
	"context"

	"github.com/lalith-99/parley/internal/models"
)

// EventSink receives side-effect notifications from the core:
// broadcast, push, socket fan-out all live behind it. Delivery is
// fire-and-forget from the core's perspective — the methods return
// nothing, and whatever guarantees exist belong to the sink. The sink
// is injected at construction time; the core never reaches for a
// global broadcaster.
type EventSink interface {
	MessageCreated(ctx context.Context, msg models.Message)
	ParticipantAdded(ctx context.Context, m models.Membership)
	ParticipantRemoved(ctx context.Context, m models.Membership)
}

// NopSink discards all events. Useful default for tests and tools that
// don't broadcast.
type NopSink struct{}

func (NopSink) MessageCreated(context.Context, models.Message)        {}
func (NopSink) ParticipantAdded(context.Context, models.Membership)   {}
func (NopSink) ParticipantRemoved(context.Context, models.Membership) {}
