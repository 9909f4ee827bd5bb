package game

import (
	"context"
	"errors"
	"net/http"

	"battlebots/internal/store"
	"battlebots/models"

	"go.uber.org/zap"
)

// FindOne returns the game detail. Streams, arena and per-player context are
// each loaded independently; a relation that fails to load is left out.
func (o *Orchestrator) FindOne(ctx context.Context, id uint) GameResponse {
	g, err := o.store.GetGame(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Response[*models.GameResource]{HTTPCode: http.StatusNotFound, Message: "game not found"}
		}
		return failGame(err)
	}

	res := models.GameToResource(g)
	o.runIsolated(ctx, id,
		step{name: "streams", run: func(ctx context.Context) error {
			has, err := o.store.HasStream(ctx, id)
			if err != nil || !has {
				return err
			}
			streams, err := o.store.ListStreams(ctx, id)
			if err != nil {
				return err
			}
			res.Streams = models.StreamsToResources(streams)
			return nil
		}},
		step{name: "arena", run: func(ctx context.Context) error {
			if g.Arena == nil {
				return nil
			}
			var bots []models.Robot
			has, err := o.store.HasBotsByArena(ctx, g.Arena.ID)
			if err != nil {
				return err
			}
			if has {
				if bots, err = o.store.ListArenaBots(ctx, g.Arena.ID); err != nil {
					return err
				}
			}
			res.Arena = models.ArenaToResource(g.Arena, bots)
			return nil
		}},
		step{name: "players", run: func(ctx context.Context) error {
			players, err := o.playerDetails(ctx, id)
			if err != nil {
				return err
			}
			res.Players = players
			return nil
		}},
	)
	return success(http.StatusOK, "game detail", res)
}

// playerDetails lists the game's players with their robot and last session
// context. Missing robots or sessions only leave that player's field empty.
func (o *Orchestrator) playerDetails(ctx context.Context, gameID uint) ([]models.PlayerResource, error) {
	users, err := o.store.ListGameUsers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	players := make([]models.PlayerResource, 0, len(users))
	for _, u := range users {
		if u.Player == nil {
			continue
		}
		p := models.PlayerToResource(u.Player)

		robots, err := o.store.SearchRobots(ctx, gameID, p.ID)
		if err != nil {
			o.logger.Error("Failed to load player robot", zap.Uint("game", gameID), zap.Uint("player", p.ID), zap.Error(err))
		} else if len(robots) > 0 {
			p.BotSpecs = models.RobotToResource(&robots[0])
		}

		sessions, err := o.store.SearchSessions(ctx, gameID, p.ID)
		if err != nil {
			o.logger.Error("Failed to load player session", zap.Uint("game", gameID), zap.Uint("player", p.ID), zap.Error(err))
		} else if len(sessions) > 0 {
			p.BotContext = models.SessionToContext(&sessions[0])
		}
		players = append(players, p)
	}
	return players, nil
}

func (o *Orchestrator) FindAll(ctx context.Context) GamesResponse {
	games, err := o.store.ListGames(ctx)
	if err != nil {
		o.logger.Error("Failed to list games", zap.Error(err))
		return fail[[]models.GameResource](err)
	}
	return success(http.StatusOK, "game list", models.GamesToResources(games))
}
