// Package migrations applies the schema changes in order and records each one
// in schema_migrations so it runs once.
package migrations

import (
	"fmt"
	"time"

	"battlebots/internal/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SchemaMigration is one applied migration.
type SchemaMigration struct {
	ID        string `gorm:"primaryKey;size:64"`
	AppliedAt time.Time
}

type Migration struct {
	ID      string
	Migrate func(tx *gorm.DB) error
}

// All lists the migrations in the order they apply. Append only.
var All = []Migration{
	{ID: "202410010900_create_tables", Migrate: store.AutoMigrate},
	{ID: "202410021200_backfill_game_status", Migrate: backfillGameStatus},
	{ID: "202410051030_drop_orphan_links", Migrate: dropOrphanLinks},
}

// Rows written before the status column existed count as CREATED.
func backfillGameStatus(tx *gorm.DB) error {
	return tx.Exec("UPDATE games SET status = ? WHERE status = '' OR status IS NULL", "CREATED").Error
}

func dropOrphanLinks(tx *gorm.DB) error {
	for _, table := range []string{"game_users", "game_robots", "sessions"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE game_id NOT IN (SELECT id FROM games)", table)
		if err := tx.Exec(q).Error; err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
	}
	return nil
}

// Run applies every migration not yet recorded and returns the ids it applied.
func Run(db *gorm.DB, logger *zap.Logger) ([]string, error) {
	return run(db, All, logger)
}

func run(db *gorm.DB, migrations []Migration, logger *zap.Logger) ([]string, error) {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	var done []SchemaMigration
	if err := db.Find(&done).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(done))
	for _, m := range done {
		seen[m.ID] = true
	}

	var applied []string
	for _, m := range migrations {
		if seen[m.ID] {
			continue
		}
		m := m
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Migrate(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{ID: m.ID, AppliedAt: time.Now()}).Error
		})
		if err != nil {
			logger.Error("Migration failed", zap.String("migration", m.ID), zap.Error(err))
			return applied, fmt.Errorf("migration %s: %w", m.ID, err)
		}
		logger.Info("Migration applied", zap.String("migration", m.ID))
		applied = append(applied, m.ID)
	}
	return applied, nil
}
