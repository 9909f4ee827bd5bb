// Package events publishes game lifecycle changes to a broker and to spectators.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"battlebots/models"
)

const (
	GameCreated = "game.created"
	GameUpdated = "game.updated"
	GameStarted = "game.started"
	GameEnded   = "game.ended"
	GameDeleted = "game.deleted"
	GameLinked  = "game.linked"
)

const publishTimeout = 2 * time.Second

// Event is one lifecycle change of a game.
type Event struct {
	Type   string            `json:"type"`
	GameID uint              `json:"gameId"`
	Status models.GameStatus `json:"status,omitempty"`
	At     int64             `json:"at"`
	// Data carries the game resource or the link description.
	Data interface{} `json:"data,omitempty"`
}

func NewEvent(typ string, gameID uint, status models.GameStatus, data interface{}) Event {
	return Event{Type: typ, GameID: gameID, Status: status, At: time.Now().UnixMilli(), Data: data}
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type Noop struct{}

func NewNoop() *Noop                              { return &Noop{} }
func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Multi fans one event out to every publisher.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
