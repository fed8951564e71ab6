package events

import (
	"context"
	"encoding/json"

	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel carries every event for every room. Cross-process consumers
// (other server replicas feeding their own websocket hubs, workers)
// subscribe here and filter by room_id themselves.
const Channel = "parley:events"

// RedisSink publishes events to Redis pub/sub so a multi-replica
// deployment can fan events out beyond the emitting process. Publish
// failures are logged and dropped — delivery guarantees belong to the
// broadcast layer, not the core.
type RedisSink struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisSink(client *redis.Client, logger *zap.Logger) *RedisSink {
	return &RedisSink{client: client, logger: logger}
}

var _ chat.EventSink = (*RedisSink)(nil)

func (s *RedisSink) publish(ctx context.Context, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("marshal event", zap.String("type", env.Type), zap.Error(err))
		return
	}
	if err := s.client.Publish(ctx, Channel, payload).Err(); err != nil {
		s.logger.Warn("publish event",
			zap.String("type", env.Type),
			zap.String("room_id", env.RoomID),
			zap.Error(err),
		)
	}
}

func (s *RedisSink) MessageCreated(ctx context.Context, msg models.Message) {
	s.publish(ctx, Envelope{Type: TypeMessageCreated, RoomID: msg.RoomID.String(), Payload: msg})
}

func (s *RedisSink) ParticipantAdded(ctx context.Context, m models.Membership) {
	s.publish(ctx, Envelope{Type: TypeParticipantAdded, RoomID: m.RoomID.String(), Payload: m})
}

func (s *RedisSink) ParticipantRemoved(ctx context.Context, m models.Membership) {
	s.publish(ctx, Envelope{Type: TypeParticipantRemoved, RoomID: m.RoomID.String(), Payload: m})
}
