package store

import (
	"context"

	"battlebots/models"

	"gorm.io/gorm"
)

func (s *GormStore) GetArena(ctx context.Context, id uint) (*models.Arena, error) {
	var a models.Arena
	if err := s.conn(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *GormStore) SaveArena(ctx context.Context, a *models.Arena) error {
	return s.conn(ctx).Save(a).Error
}

func (s *GormStore) ListArenas(ctx context.Context) ([]models.Arena, error) {
	var arenas []models.Arena
	err := s.conn(ctx).Order("id").Find(&arenas).Error
	return arenas, err
}

func (s *GormStore) LinkBotToArena(ctx context.Context, robotID, arenaID uint) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Arena{}, arenaID); err != nil {
			return err
		}
		if err := exists(tx, &models.Robot{}, robotID); err != nil {
			return err
		}
		row := models.ArenaRobot{ArenaID: arenaID, RobotID: robotID}
		return tx.Where(&row).FirstOrCreate(&row).Error
	})
}

func (s *GormStore) HasBotsByArena(ctx context.Context, arenaID uint) (bool, error) {
	var n int64
	err := s.conn(ctx).Model(&models.ArenaRobot{}).Where("arena_id = ?", arenaID).Count(&n).Error
	return n > 0, err
}

func (s *GormStore) ListArenaBots(ctx context.Context, arenaID uint) ([]models.Robot, error) {
	var robots []models.Robot
	err := s.conn(ctx).
		Joins("JOIN arena_robots ON arena_robots.robot_id = robots.id").
		Where("arena_robots.arena_id = ?", arenaID).
		Order("robots.id").
		Find(&robots).Error
	return robots, err
}

func (s *GormStore) HasStream(ctx context.Context, gameID uint) (bool, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Stream{}).Where("game_id = ?", gameID).Count(&n).Error
	return n > 0, err
}

func (s *GormStore) ListStreams(ctx context.Context, gameID uint) ([]models.Stream, error) {
	var streams []models.Stream
	q := s.conn(ctx).Order("id")
	if gameID != 0 {
		q = q.Where("game_id = ?", gameID)
	}
	err := q.Find(&streams).Error
	return streams, err
}

func (s *GormStore) SaveStream(ctx context.Context, st *models.Stream) error {
	return s.conn(ctx).Save(st).Error
}

func (s *GormStore) SearchSessions(ctx context.Context, gameID, playerID uint) ([]models.Session, error) {
	var sessions []models.Session
	err := s.conn(ctx).
		Where("game_id = ? AND player_id = ?", gameID, playerID).
		Order("id").
		Find(&sessions).Error
	return sessions, err
}
