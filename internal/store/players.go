package store

import (
	"context"

	"battlebots/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *GormStore) GetPlayer(ctx context.Context, id uint) (*models.Player, error) {
	var p models.Player
	if err := s.conn(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// SavePlayer upserts by id, so a client-supplied player id is kept.
func (s *GormStore) SavePlayer(ctx context.Context, p *models.Player) error {
	if p.ID == 0 {
		return s.conn(ctx).Create(p).Error
	}
	return s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at", "pseudo", "firstname", "lastname", "email"}),
	}).Create(p).Error
}

func (s *GormStore) ListPlayers(ctx context.Context) ([]models.Player, error) {
	var players []models.Player
	err := s.conn(ctx).Order("id").Find(&players).Error
	return players, err
}

func (s *GormStore) GetRobot(ctx context.Context, id uint) (*models.Robot, error) {
	var r models.Robot
	if err := s.conn(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *GormStore) SaveRobot(ctx context.Context, r *models.Robot) error {
	if r.ID == 0 {
		return s.conn(ctx).Create(r).Error
	}
	return s.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "name", "bot_ip", "running", "taken", "speed", "damage", "fire_rate", "armor",
		}),
	}).Create(r).Error
}

func (s *GormStore) ListRobots(ctx context.Context) ([]models.Robot, error) {
	var robots []models.Robot
	err := s.conn(ctx).Order("id").Find(&robots).Error
	return robots, err
}

func (s *GormStore) SearchRobots(ctx context.Context, gameID, playerID uint) ([]models.Robot, error) {
	var robots []models.Robot
	err := s.conn(ctx).
		Joins("JOIN game_robots ON game_robots.robot_id = robots.id").
		Joins("JOIN robot_users ON robot_users.robot_id = robots.id").
		Where("game_robots.game_id = ? AND robot_users.player_id = ?", gameID, playerID).
		Order("robots.id").
		Find(&robots).Error
	return robots, err
}

func (s *GormStore) ReplacePlayerRobot(ctx context.Context, playerID, robotID uint) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("player_id = ?", playerID).Delete(&models.RobotUser{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.RobotUser{PlayerID: playerID, RobotID: robotID}).Error
	})
}
