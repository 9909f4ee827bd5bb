// Package store persists games, their participants and the join rows between them.
package store

import (
	"context"
	"errors"

	"battlebots/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when an entity, or either endpoint of a link, does not exist.
var ErrNotFound = errors.New("store: record not found")

type GameStore interface {
	GetGame(ctx context.Context, id uint) (*models.Game, error)
	ListGames(ctx context.Context) ([]models.Game, error)
	// SaveGame inserts when g.ID is zero and updates the existing row otherwise.
	SaveGame(ctx context.Context, g *models.Game) error
	// DeleteGame removes the game together with its join rows, sessions and streams.
	DeleteGame(ctx context.Context, id uint) error
	ListStaleGames(ctx context.Context, status models.GameStatus, createdBefore int64) ([]models.Game, error)
	// EndGame writes the game, one stream and one session per result in a single transaction.
	EndGame(ctx context.Context, g *models.Game, results []EndResult) error

	LinkArenaToGame(ctx context.Context, arenaID, gameID uint) (*models.Game, error)
	LinkStreamToGame(ctx context.Context, streamID, gameID uint) (*models.Game, error)
	LinkBotToGame(ctx context.Context, robotID, gameID uint) (*models.Game, error)
	LinkUserToGame(ctx context.Context, playerID, gameID uint) (*models.Game, error)
	AddBotsToGame(ctx context.Context, gameID uint, robotIDs []uint) error
	AddUsersToGame(ctx context.Context, gameID uint, playerIDs []uint) error
	ListGameUsers(ctx context.Context, gameID uint) ([]models.GameUser, error)
}

type PlayerStore interface {
	GetPlayer(ctx context.Context, id uint) (*models.Player, error)
	SavePlayer(ctx context.Context, p *models.Player) error
	ListPlayers(ctx context.Context) ([]models.Player, error)
}

type RobotStore interface {
	GetRobot(ctx context.Context, id uint) (*models.Robot, error)
	SaveRobot(ctx context.Context, r *models.Robot) error
	ListRobots(ctx context.Context) ([]models.Robot, error)
	// SearchRobots returns the robots linked to the game that the player currently owns.
	SearchRobots(ctx context.Context, gameID, playerID uint) ([]models.Robot, error)
	// ReplacePlayerRobot drops the player's previous robot link and records robotID instead.
	ReplacePlayerRobot(ctx context.Context, playerID, robotID uint) error
}

type ArenaStore interface {
	GetArena(ctx context.Context, id uint) (*models.Arena, error)
	SaveArena(ctx context.Context, a *models.Arena) error
	ListArenas(ctx context.Context) ([]models.Arena, error)
	LinkBotToArena(ctx context.Context, robotID, arenaID uint) error
	HasBotsByArena(ctx context.Context, arenaID uint) (bool, error)
	ListArenaBots(ctx context.Context, arenaID uint) ([]models.Robot, error)
}

type StreamStore interface {
	HasStream(ctx context.Context, gameID uint) (bool, error)
	// ListStreams lists every stream when gameID is zero.
	ListStreams(ctx context.Context, gameID uint) ([]models.Stream, error)
	SaveStream(ctx context.Context, s *models.Stream) error
}

type SessionStore interface {
	SearchSessions(ctx context.Context, gameID, playerID uint) ([]models.Session, error)
}

// Store is everything the game orchestrator reads and writes.
type Store interface {
	GameStore
	PlayerStore
	RobotStore
	ArenaStore
	StreamStore
	SessionStore
}

// EndResult is one player's uploaded stream and the session that references it.
type EndResult struct {
	Stream  models.Stream
	Session models.Session
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates every table the store uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Player{},
		&models.Robot{},
		&models.Arena{},
		&models.Game{},
		&models.Stream{},
		&models.Session{},
		&models.GameRobot{},
		&models.GameUser{},
		&models.RobotUser{},
		&models.ArenaRobot{},
	)
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// exists reports ErrNotFound when no live row of model has the given id.
func exists(tx *gorm.DB, model interface{}, id uint) error {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
