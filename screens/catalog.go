// Package screens serves the read-only lists the lobby screens show.
package screens

import (
	"context"
	"net/http"
	"strconv"

	"battlebots/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Catalog is the slice of the entity store the lobby reads from.
type Catalog interface {
	ListArenas(ctx context.Context) ([]models.Arena, error)
	ListArenaBots(ctx context.Context, arenaID uint) ([]models.Robot, error)
	ListRobots(ctx context.Context) ([]models.Robot, error)
	ListPlayers(ctx context.Context) ([]models.Player, error)
}

// Register mounts the lobby lists on r.
func Register(r gin.IRouter, catalog Catalog, logger *zap.Logger) {
	r.GET("/arenas", func(c *gin.Context) { ArenaList(c, catalog, logger) })
	r.GET("/arenas/:id/bots", func(c *gin.Context) { ArenaBots(c, catalog, logger) })
	r.GET("/bots", func(c *gin.Context) { BotList(c, catalog, logger) })
	r.GET("/players", func(c *gin.Context) { PlayerList(c, catalog, logger) })
}

func ArenaList(c *gin.Context, catalog Catalog, logger *zap.Logger) {
	arenas, err := catalog.ListArenas(c.Request.Context())
	if err != nil {
		logger.Error("Failed to list arenas", zap.Error(err))
		failed(c, "failed to list arenas")
		return
	}
	c.JSON(http.StatusOK, models.Response[[]models.ArenaResource]{
		HTTPCode: http.StatusOK,
		Message:  "arena list",
		Data:     models.ArenasToResources(arenas),
	})
}

func ArenaBots(c *gin.Context, catalog Catalog, logger *zap.Logger) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.Response[any]{HTTPCode: http.StatusBadRequest, Message: "invalid arena id"})
		return
	}
	bots, err := catalog.ListArenaBots(c.Request.Context(), uint(id))
	if err != nil {
		logger.Error("Failed to list arena bots", zap.Uint64("arena", id), zap.Error(err))
		failed(c, "failed to list arena bots")
		return
	}
	c.JSON(http.StatusOK, models.Response[[]models.BotResource]{
		HTTPCode: http.StatusOK,
		Message:  "arena bots",
		Data:     models.RobotsToResources(bots),
	})
}

func BotList(c *gin.Context, catalog Catalog, logger *zap.Logger) {
	bots, err := catalog.ListRobots(c.Request.Context())
	if err != nil {
		logger.Error("Failed to list bots", zap.Error(err))
		failed(c, "failed to list bots")
		return
	}
	c.JSON(http.StatusOK, models.Response[[]models.BotResource]{
		HTTPCode: http.StatusOK,
		Message:  "bot list",
		Data:     models.RobotsToResources(bots),
	})
}

func PlayerList(c *gin.Context, catalog Catalog, logger *zap.Logger) {
	players, err := catalog.ListPlayers(c.Request.Context())
	if err != nil {
		logger.Error("Failed to list players", zap.Error(err))
		failed(c, "failed to list players")
		return
	}
	c.JSON(http.StatusOK, models.Response[[]models.PlayerResource]{
		HTTPCode: http.StatusOK,
		Message:  "player list",
		Data:     models.PlayersToResources(players),
	})
}

func failed(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.Response[any]{HTTPCode: http.StatusBadRequest, Message: msg})
}
