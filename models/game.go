package models

import (
	"time"

	"gorm.io/gorm"
)

// Game is one match instance. Timestamps are unix milliseconds.
type Game struct {
	gorm.Model
	Name         string     `gorm:"not null"`
	Status       GameStatus `gorm:"size:16;not null;default:'CREATED';index"`
	CreationTime int64      `gorm:"not null"`
	StartTime    int64
	FinishTime   int64
	Token        string // issued by the match worker
	Secret       string
	ArenaID      *uint       `gorm:"index"`
	Arena        *Arena      `gorm:"foreignKey:ArenaID"`
	GameRobots   []GameRobot `gorm:"foreignKey:GameID"`
	GameUsers    []GameUser  `gorm:"foreignKey:GameID"`
	Sessions     []Session   `gorm:"foreignKey:GameID"`
	Streams      []Stream    `gorm:"foreignKey:GameID"`
}

// NewGame returns a CREATED game stamped with now.
func NewGame(name string, now time.Time) *Game {
	return &Game{Name: name, Status: StatusCreated, CreationTime: millis(now)}
}

// Validate rejects unknown statuses and out-of-order timestamps.
func (g *Game) Validate() error {
	return checkTimeline(g.Status, g.CreationTime, g.StartTime, g.FinishTime)
}

// BeforeSave keeps invalid timelines out of the games table.
func (g *Game) BeforeSave(tx *gorm.DB) error {
	return g.Validate()
}

// Advance moves the game one step forward and stamps the matching timestamp.
// The game is left untouched when the move is rejected.
func (g *Game) Advance(to GameStatus, now time.Time) error {
	if !g.Status.CanAdvance(to) {
		return &TransitionError{From: g.Status, To: to}
	}
	started, finished := g.StartTime, g.FinishTime
	switch to {
	case StatusStarted:
		started = millis(now)
	case StatusEnded:
		finished = millis(now)
	}
	if err := checkTimeline(to, g.CreationTime, started, finished); err != nil {
		return err
	}
	g.Status, g.StartTime, g.FinishTime = to, started, finished
	return nil
}

// TransitionError describes a rejected status move.
type TransitionError struct {
	From, To GameStatus
}

func (e *TransitionError) Error() string {
	return "invalid game status transition: " + string(e.From) + " -> " + string(e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
