package game

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"battlebots/internal/events"
	"battlebots/internal/store"
	"battlebots/models"

	"go.uber.org/zap"
)

func (o *Orchestrator) LinkArenaToGame(ctx context.Context, arenaID, gameID uint) GameResponse {
	return o.link(ctx, gameID, fmt.Sprintf("link arena %d to game %d", arenaID, gameID), func() (*models.GameResource, error) {
		g, err := o.store.LinkArenaToGame(ctx, arenaID, gameID)
		if err != nil {
			return nil, err
		}
		res := models.GameToResource(g)
		bots, err := o.store.ListArenaBots(ctx, arenaID)
		if err != nil {
			o.logger.Error("Failed to load arena bots", zap.Uint("arena", arenaID), zap.Error(err))
		}
		res.Arena = models.ArenaToResource(g.Arena, bots)
		return res, nil
	})
}

func (o *Orchestrator) LinkStreamToGame(ctx context.Context, streamID, gameID uint) GameResponse {
	return o.link(ctx, gameID, fmt.Sprintf("link stream %d to game %d", streamID, gameID), func() (*models.GameResource, error) {
		g, err := o.store.LinkStreamToGame(ctx, streamID, gameID)
		if err != nil {
			return nil, err
		}
		res := models.GameToResource(g)
		streams, err := o.store.ListStreams(ctx, gameID)
		if err != nil {
			o.logger.Error("Failed to load game streams", zap.Uint("game", gameID), zap.Error(err))
		}
		res.Streams = models.StreamsToResources(streams)
		return res, nil
	})
}

func (o *Orchestrator) LinkBotToGame(ctx context.Context, robotID, gameID uint) GameResponse {
	return o.link(ctx, gameID, fmt.Sprintf("link bot %d to game %d", robotID, gameID), func() (*models.GameResource, error) {
		g, err := o.store.LinkBotToGame(ctx, robotID, gameID)
		if err != nil {
			return nil, err
		}
		return models.GameToResource(g), nil
	})
}

func (o *Orchestrator) LinkUserToGame(ctx context.Context, playerID, gameID uint) GameResponse {
	return o.link(ctx, gameID, fmt.Sprintf("link user %d to game %d", playerID, gameID), func() (*models.GameResource, error) {
		if err := o.checkOpenRoster(ctx, gameID, playerID); err != nil {
			return nil, err
		}
		g, err := o.store.LinkUserToGame(ctx, playerID, gameID)
		if err != nil {
			return nil, err
		}
		return models.GameToResource(g), nil
	})
}

// checkOpenRoster refuses new participants once a game has ended. Relinking a
// player who already took part is a no-op and stays allowed.
func (o *Orchestrator) checkOpenRoster(ctx context.Context, gameID, playerID uint) error {
	g, err := o.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if !g.Status.Terminal() {
		return nil
	}
	linked, err := o.store.ListGameUsers(ctx, gameID)
	if err != nil {
		return err
	}
	for _, u := range linked {
		if u.PlayerID == playerID {
			return nil
		}
	}
	return badRequest("game %d has ended, player %d cannot join it", gameID, playerID)
}

// link runs one relation write under the game lock. A missing endpoint
// answers 404, any other failure 400.
func (o *Orchestrator) link(ctx context.Context, gameID uint, msg string, write func() (*models.GameResource, error)) GameResponse {
	unlock, err := o.lockGame(ctx, gameID)
	if err != nil {
		return failGame(err)
	}
	defer unlock()

	res, err := write()
	if err != nil {
		o.logger.Error("Link failed", zap.String("link", msg), zap.Error(err))
		return failGame(err)
	}
	o.publish(ctx, events.GameLinked, res.ID, res.Status, msg)
	return success(http.StatusOK, msg, res)
}

// JoinGame forwards the join to the worker without touching local state.
func (o *Orchestrator) JoinGame(ctx context.Context, gameID, playerID uint) GameResponse {
	if err := o.worker.JoinMatch(ctx, gameID, playerID); err != nil {
		o.logger.Error("Worker join failed", zap.Uint("game", gameID), zap.Uint("player", playerID), zap.Error(err))
		return models.Response[*models.GameResource]{HTTPCode: http.StatusInternalServerError, Message: err.Error()}
	}
	return success[*models.GameResource](http.StatusOK, fmt.Sprintf("user %d joined game %d", playerID, gameID), nil)
}

// DeleteOne removes the game and its relations, then asks the worker to drop
// the match. Worker failures are only logged.
func (o *Orchestrator) DeleteOne(ctx context.Context, id uint) DeleteResponse {
	unlock, err := o.lockGame(ctx, id)
	if err != nil {
		return fail[bool](err)
	}
	defer unlock()

	g, err := o.store.GetGame(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DeleteResponse{HTTPCode: http.StatusNotFound, Message: "game not found"}
		}
		return fail[bool](err)
	}
	if err := o.remove(ctx, g); err != nil {
		return fail[bool](err)
	}
	return success(http.StatusOK, "game deleted", true)
}

// remove expects the caller to hold the game lock.
func (o *Orchestrator) remove(ctx context.Context, g *models.Game) error {
	if err := o.store.DeleteGame(ctx, g.ID); err != nil {
		o.logger.Error("Failed to delete game", zap.Uint("game", g.ID), zap.Error(err))
		return err
	}
	if err := o.worker.DeleteMatch(ctx, g.ID); err != nil {
		o.logger.Error("Worker failed to delete match", zap.Uint("game", g.ID), zap.Error(err))
	}
	o.publish(ctx, events.GameDeleted, g.ID, g.Status, nil)
	return nil
}

// ExpireStale deletes games that are still CREATED after maxAge and returns
// how many were removed.
func (o *Orchestrator) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := o.now().Add(-maxAge).UnixMilli()
	games, err := o.store.ListStaleGames(ctx, models.StatusCreated, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, g := range games {
		resp := o.DeleteOne(ctx, g.ID)
		if resp.HTTPCode != http.StatusOK {
			o.logger.Warn("Stale game not deleted", zap.Uint("game", g.ID), zap.Int("code", resp.HTTPCode), zap.String("message", resp.Message))
			continue
		}
		removed++
	}
	return removed, nil
}
