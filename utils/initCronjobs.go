package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StaleGameExpirer deletes games left in CREATED for longer than maxAge.
type StaleGameExpirer interface {
	ExpireStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// CronCleaner schedules the stale game cleanup and starts the scheduler.
// The caller stops it on shutdown.
func CronCleaner(expirer StaleGameExpirer, schedule string, maxAge time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		logger.Info("Expiring stale games", zap.Duration("max_age", maxAge))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := expirer.ExpireStale(ctx, maxAge)
		if err != nil {
			logger.Error("Stale game cleanup failed", zap.Error(err))
			return
		}
		logger.Info("Stale game cleanup done", zap.Int("games_deleted", n))
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
