// Package events holds the EventSink implementations the server wires
// behind the messaging core: structured-log, Redis pub/sub, and a
// fan-out combinator. The websocket hub in internal/realtime is a
// fourth sink.
package events

import (
	"context"

	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/models"
	"github.com/lalith-99/parley/internal/observ"
	"go.uber.org/zap"
)

// Event names on the wire and in metrics labels.
const (
	TypeMessageCreated     = "message.created"
	TypeParticipantAdded   = "participant.added"
	TypeParticipantRemoved = "participant.removed"
)

// Envelope is the serialized form every sink that leaves the process
// publishes. Payload is the message or membership that triggered it.
type Envelope struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id"`
	Payload any    `json:"payload"`
}

// LogSink records events to the process log. Useful alone in tools
// (the digest command) and as a fan-out member in the server.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

var _ chat.EventSink = (*LogSink)(nil)

func (s *LogSink) MessageCreated(ctx context.Context, msg models.Message) {
	observ.EventsPublished.WithLabelValues(TypeMessageCreated).Inc()
	s.logger.Info("event",
		zap.String("type", TypeMessageCreated),
		zap.String("room_id", msg.RoomID.String()),
		zap.Int64("message_id", msg.ID),
		zap.Bool("system", msg.IsSystem()),
	)
}

func (s *LogSink) ParticipantAdded(ctx context.Context, m models.Membership) {
	observ.EventsPublished.WithLabelValues(TypeParticipantAdded).Inc()
	s.logger.Info("event",
		zap.String("type", TypeParticipantAdded),
		zap.String("room_id", m.RoomID.String()),
		zap.String("participant", m.Participant.Key()),
	)
}

func (s *LogSink) ParticipantRemoved(ctx context.Context, m models.Membership) {
	observ.EventsPublished.WithLabelValues(TypeParticipantRemoved).Inc()
	s.logger.Info("event",
		zap.String("type", TypeParticipantRemoved),
		zap.String("room_id", m.RoomID.String()),
		zap.String("participant", m.Participant.Key()),
	)
}

// Fanout delivers every event to each wrapped sink in order. Sinks are
// fire-and-forget, so one slow or failing sink is that sink's problem.
type Fanout []chat.EventSink

var _ chat.EventSink = (Fanout)(nil)

func (f Fanout) MessageCreated(ctx context.Context, msg models.Message) {
	for _, s := range f {
		s.MessageCreated(ctx, msg)
	}
}

func (f Fanout) ParticipantAdded(ctx context.Context, m models.Membership) {
	for _, s := range f {
		s.ParticipantAdded(ctx, m)
	}
}

func (f Fanout) ParticipantRemoved(ctx context.Context, m models.Membership) {
	for _, s := range f {
		s.ParticipantRemoved(ctx, m)
	}
}
