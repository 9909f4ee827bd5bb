package models

import (
	"time"

	"gorm.io/gorm"
)

// Player is a user's game profile.
type Player struct {
	gorm.Model
	Pseudo    string `gorm:"not null"`
	Firstname string
	Lastname  string
	Email     string `gorm:"index"`
}

// Robot is a combatant. Games and players reference it through join rows.
type Robot struct {
	gorm.Model
	Name     string
	BotIP    string `gorm:"column:bot_ip"`
	Running  bool
	Taken    bool
	Speed    int
	Damage   int
	FireRate int
	Armor    int
}

// Arena is a reusable battle environment; many games may point at one arena.
type Arena struct {
	gorm.Model
	Name        string `gorm:"not null"`
	Description string `gorm:"type:text"`
	Width       int
	Height      int
	ArenaRobots []ArenaRobot `gorm:"foreignKey:ArenaID"`
}

// Stream is recorded match footage uploaded to external storage.
type Stream struct {
	gorm.Model
	S3URL      string `gorm:"column:s3_url"`
	KinesisURL string
	Encoding   string
	Duration   int
	Running    bool
	Private    bool
	RobotID    uint  `gorm:"index"`
	GameID     *uint `gorm:"index"`
}

// Session is the per-player end-of-game snapshot of the robot's energy and heat.
type Session struct {
	gorm.Model
	GameID    uint `gorm:"not null;uniqueIndex:idx_session_triple"`
	PlayerID  uint `gorm:"not null;uniqueIndex:idx_session_triple"`
	StreamID  uint `gorm:"not null;uniqueIndex:idx_session_triple"`
	RobotID   uint
	BotEnergy *int
	BotHeat   *int
}

// GameRobot links a robot to a game.
type GameRobot struct {
	ID        uint   `gorm:"primaryKey"`
	GameID    uint   `gorm:"not null;uniqueIndex:idx_game_robot"`
	RobotID   uint   `gorm:"not null;uniqueIndex:idx_game_robot"`
	Robot     *Robot `gorm:"foreignKey:RobotID"`
	CreatedAt time.Time
}

// GameUser links a player to a game.
type GameUser struct {
	ID        uint    `gorm:"primaryKey"`
	GameID    uint    `gorm:"not null;uniqueIndex:idx_game_user"`
	PlayerID  uint    `gorm:"not null;uniqueIndex:idx_game_user"`
	Player    *Player `gorm:"foreignKey:PlayerID"`
	CreatedAt time.Time
}

// RobotUser is a player's active robot. One row per player at most.
type RobotUser struct {
	ID        uint `gorm:"primaryKey"`
	PlayerID  uint `gorm:"not null;uniqueIndex"`
	RobotID   uint `gorm:"not null;index"`
	CreatedAt time.Time
}

// ArenaRobot lists robots available in an arena.
type ArenaRobot struct {
	ID        uint   `gorm:"primaryKey"`
	ArenaID   uint   `gorm:"not null;uniqueIndex:idx_arena_robot"`
	RobotID   uint   `gorm:"not null;uniqueIndex:idx_arena_robot"`
	Robot     *Robot `gorm:"foreignKey:RobotID"`
	CreatedAt time.Time
}
