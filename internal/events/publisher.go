package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher delivers events to whoever is listening. Publishing is
// best-effort; a lost event never fails the operation that produced it.
type Publisher interface {
	Publish(ctx context.Context, events ...Event)
}

// LogPublisher writes events to the structured log only. Used in tests and
// when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...Event) {
	for _, e := range events {
		p.logger.Info("event",
			zap.String("type", e.Type),
			zap.String("tenant_id", e.TenantID),
			zap.Any("payload", e.Payload),
		)
	}
}

// RedisPublisher fans events out over a redis pub/sub channel so dashboards
// and the application layer can subscribe without polling.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: "tenantd:events",
		logger:  logger,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, events ...Event) {
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			p.logger.Error("Failed to marshal event", zap.Error(err), zap.String("type", e.Type))
			continue
		}
		if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
			p.logger.Error("Failed to publish event",
				zap.Error(err),
				zap.String("type", e.Type),
				zap.String("tenant_id", e.TenantID),
			)
		}
	}
}
