package events

import (
	"battlebots/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewFromConfig builds the broker publisher. events_driver: kafka|redis|none (default).
func NewFromConfig(cfg models.Config, rdb *redis.Client, logger *zap.Logger) Publisher {
	switch cfg.EventsDriver {
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			logger.Warn("Kafka events requested without brokers; using noop")
			return NewNoop()
		}
		logger.Info("Kafka event publisher enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "redis":
		if rdb == nil {
			logger.Warn("Redis events requested without a redis client; using noop")
			return NewNoop()
		}
		logger.Info("Redis stream event publisher enabled", zap.String("stream", cfg.RedisStream))
		return NewRedisStream(rdb, cfg.RedisStream)
	case "", "none":
		return NewNoop()
	default:
		logger.Warn("Unsupported events driver; using noop", zap.String("driver", cfg.EventsDriver))
		return NewNoop()
	}
}
