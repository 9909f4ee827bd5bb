package store

import (
	"context"

	"battlebots/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *GormStore) GetGame(ctx context.Context, id uint) (*models.Game, error) {
	var g models.Game
	if err := s.conn(ctx).Preload("Arena").First(&g, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (s *GormStore) ListGames(ctx context.Context) ([]models.Game, error) {
	var games []models.Game
	err := s.conn(ctx).Order("id").Find(&games).Error
	return games, err
}

func (s *GormStore) SaveGame(ctx context.Context, g *models.Game) error {
	if g.ID == 0 {
		return s.conn(ctx).Omit(clause.Associations).Create(g).Error
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Game{}, g.ID); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(g).Error
	})
}

func (s *GormStore) DeleteGame(ctx context.Context, id uint) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Game{}, id); err != nil {
			return err
		}
		if err := tx.Where("game_id = ?", id).Delete(&models.GameRobot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("game_id = ?", id).Delete(&models.GameUser{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("game_id = ?", id).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("game_id = ?", id).Delete(&models.Stream{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Game{}, id).Error
	})
}

func (s *GormStore) ListStaleGames(ctx context.Context, status models.GameStatus, createdBefore int64) ([]models.Game, error) {
	var games []models.Game
	err := s.conn(ctx).
		Where("status = ? AND creation_time < ?", status, createdBefore).
		Order("id").
		Find(&games).Error
	return games, err
}

func (s *GormStore) EndGame(ctx context.Context, g *models.Game, results []EndResult) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Game{}, g.ID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(g).Error; err != nil {
			return err
		}
		for i := range results {
			r := &results[i]
			gameID := g.ID
			r.Stream.GameID = &gameID
			if err := tx.Create(&r.Stream).Error; err != nil {
				return err
			}
			r.Session.GameID = g.ID
			r.Session.StreamID = r.Stream.ID
			if err := tx.Create(&r.Session).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) LinkArenaToGame(ctx context.Context, arenaID, gameID uint) (*models.Game, error) {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Game{}, gameID); err != nil {
			return err
		}
		if err := exists(tx, &models.Arena{}, arenaID); err != nil {
			return err
		}
		return tx.Model(&models.Game{}).Where("id = ?", gameID).UpdateColumn("arena_id", arenaID).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetGame(ctx, gameID)
}

func (s *GormStore) LinkStreamToGame(ctx context.Context, streamID, gameID uint) (*models.Game, error) {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Game{}, gameID); err != nil {
			return err
		}
		if err := exists(tx, &models.Stream{}, streamID); err != nil {
			return err
		}
		return tx.Model(&models.Stream{}).Where("id = ?", streamID).UpdateColumn("game_id", gameID).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetGame(ctx, gameID)
}

func (s *GormStore) LinkBotToGame(ctx context.Context, robotID, gameID uint) (*models.Game, error) {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Game{}, gameID); err != nil {
			return err
		}
		if err := exists(tx, &models.Robot{}, robotID); err != nil {
			return err
		}
		return linkRobot(tx, gameID, robotID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetGame(ctx, gameID)
}

func (s *GormStore) LinkUserToGame(ctx context.Context, playerID, gameID uint) (*models.Game, error) {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Game{}, gameID); err != nil {
			return err
		}
		if err := exists(tx, &models.Player{}, playerID); err != nil {
			return err
		}
		return linkPlayer(tx, gameID, playerID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetGame(ctx, gameID)
}

func (s *GormStore) AddBotsToGame(ctx context.Context, gameID uint, robotIDs []uint) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Game{}, gameID); err != nil {
			return err
		}
		for _, id := range robotIDs {
			if err := linkRobot(tx, gameID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) AddUsersToGame(ctx context.Context, gameID uint, playerIDs []uint) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Game{}, gameID); err != nil {
			return err
		}
		for _, id := range playerIDs {
			if err := linkPlayer(tx, gameID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) ListGameUsers(ctx context.Context, gameID uint) ([]models.GameUser, error) {
	var rows []models.GameUser
	err := s.conn(ctx).Preload("Player").Where("game_id = ?", gameID).Order("id").Find(&rows).Error
	return rows, err
}

// linkRobot and linkPlayer leave an existing join row untouched.
func linkRobot(tx *gorm.DB, gameID, robotID uint) error {
	row := models.GameRobot{GameID: gameID, RobotID: robotID}
	return tx.Where(&row).FirstOrCreate(&row).Error
}

func linkPlayer(tx *gorm.DB, gameID, playerID uint) error {
	row := models.GameUser{GameID: gameID, PlayerID: playerID}
	return tx.Where(&row).FirstOrCreate(&row).Error
}
