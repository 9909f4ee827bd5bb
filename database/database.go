package database

import (
	"context"
	"fmt"
	"time"

	"battlebots/models"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	maxRetries    = 3
	retryInterval = 5 * time.Second
)

// Open connects to the configured database. Postgres connections are retried;
// sqlite is meant for local runs and tests.
func Open(config models.Config, log *zap.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch config.DBDriver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(config.DBPath), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", config.DBPath, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
		log.Info("Connected to sqlite", zap.String("path", config.DBPath))
		return db, nil
	case "", "postgres":
		return openPostgres(config, gormConfig, log, retryInterval)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", config.DBDriver)
	}
}

func openPostgres(config models.Config, gormConfig *gorm.Config, log *zap.Logger, interval time.Duration) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
		config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)

	var err error
	for i := 0; i <= maxRetries; i++ {
		var db *gorm.DB
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			log.Info("Connected to PostgreSQL", zap.String("host", config.DBHost), zap.String("db", config.DBName))
			return db, nil
		}
		log.Error("Database connection retry", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(interval)
		}
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// InitRedis returns a client for the configured Redis after a ping.
func InitRedis(config models.Config, log *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Error("Failed to connect to Redis", zap.String("addr", config.RedisAddr), zap.Error(err))
		rdb.Close()
		return nil, err
	}

	log.Info("Connected to Redis", zap.String("addr", config.RedisAddr))
	return rdb, nil
}

// NeedsRedis reports whether any configured component uses Redis.
func NeedsRedis(config models.Config) bool {
	return config.LockDriver == "redis" || config.EventsDriver == "redis"
}
