package handlers

import (
	"context"
	"net/http"
	"strconv"

	"battlebots/middlewares"
	"battlebots/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GameService is the orchestrator surface exposed over HTTP.
type GameService interface {
	Save(ctx context.Context, spec *models.GameResource) models.Response[*models.GameResource]
	Update(ctx context.Context, spec *models.GameResource) models.Response[*models.GameResource]
	UpdateByWorker(ctx context.Context, spec *models.GameResource) models.Response[*models.GameResource]
	End(ctx context.Context, spec *models.GameResource) models.Response[*models.GameResource]
	Start(ctx context.Context, id uint) models.Response[*models.GameResource]
	Stop(ctx context.Context, id uint) models.Response[*models.GameResource]
	FindOne(ctx context.Context, id uint) models.Response[*models.GameResource]
	FindAll(ctx context.Context) models.Response[[]models.GameResource]
	DeleteOne(ctx context.Context, id uint) models.Response[bool]
	LinkArenaToGame(ctx context.Context, arenaID, gameID uint) models.Response[*models.GameResource]
	LinkStreamToGame(ctx context.Context, streamID, gameID uint) models.Response[*models.GameResource]
	LinkBotToGame(ctx context.Context, robotID, gameID uint) models.Response[*models.GameResource]
	LinkUserToGame(ctx context.Context, playerID, gameID uint) models.Response[*models.GameResource]
	JoinGame(ctx context.Context, gameID, playerID uint) models.Response[*models.GameResource]
}

// respond writes the operation result with its own status code.
func respond[T any](c *gin.Context, resp models.Response[T]) {
	c.JSON(resp.HTTPCode, resp)
}

// paramID parses a numeric path parameter, answering 400 when it is not one.
func paramID(c *gin.Context, logger *zap.Logger, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		logger.Warn("Invalid path id", zap.String("param", name), zap.String("value", c.Param(name)))
		c.JSON(http.StatusBadRequest, models.Response[any]{HTTPCode: http.StatusBadRequest, Message: "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func bindGame(c *gin.Context, logger *zap.Logger) (*models.GameResource, bool) {
	var spec models.GameResource
	if err := c.ShouldBindJSON(&spec); err != nil {
		logger.Warn("Failed to bind game", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.Response[any]{HTTPCode: http.StatusBadRequest, Message: "invalid request body"})
		return nil, false
	}
	return &spec, true
}

func listGames(c *gin.Context, games GameService) {
	respond(c, games.FindAll(c.Request.Context()))
}

func getGame(c *gin.Context, games GameService, logger *zap.Logger) {
	id, ok := paramID(c, logger, "id")
	if !ok {
		return
	}
	respond(c, games.FindOne(c.Request.Context(), id))
}

func saveGame(c *gin.Context, games GameService, logger *zap.Logger) {
	spec, ok := bindGame(c, logger)
	if !ok {
		return
	}
	respond(c, games.Save(c.Request.Context(), spec))
}

func updateGame(c *gin.Context, games GameService, logger *zap.Logger) {
	id, ok := paramID(c, logger, "id")
	if !ok {
		return
	}
	spec, ok := bindGame(c, logger)
	if !ok {
		return
	}
	spec.ID = id
	respond(c, games.Update(c.Request.Context(), spec))
}

func endGame(c *gin.Context, games GameService, logger *zap.Logger) {
	id, ok := paramID(c, logger, "id")
	if !ok {
		return
	}
	spec, ok := bindGame(c, logger)
	if !ok {
		return
	}
	spec.ID = id
	respond(c, games.End(c.Request.Context(), spec))
}

// workerUpdate takes the game id from the body; a missing id is the
// orchestrator's 400.
func workerUpdate(c *gin.Context, games GameService, logger *zap.Logger) {
	spec, ok := bindGame(c, logger)
	if !ok {
		return
	}
	respond(c, games.UpdateByWorker(c.Request.Context(), spec))
}

func deleteGame(c *gin.Context, games GameService, logger *zap.Logger) {
	id, ok := paramID(c, logger, "id")
	if !ok {
		return
	}
	respond(c, games.DeleteOne(c.Request.Context(), id))
}

func startGame(c *gin.Context, games GameService, logger *zap.Logger) {
	if id, ok := paramID(c, logger, "id"); ok {
		respond(c, games.Start(c.Request.Context(), id))
	}
}

func stopGame(c *gin.Context, games GameService, logger *zap.Logger) {
	if id, ok := paramID(c, logger, "id"); ok {
		respond(c, games.Stop(c.Request.Context(), id))
	}
}

// joinGame joins the caller, as identified by the token, to the match.
func joinGame(c *gin.Context, games GameService, logger *zap.Logger) {
	id, ok := paramID(c, logger, "id")
	if !ok {
		return
	}
	playerID, ok := middlewares.PlayerID(c)
	if !ok || playerID == 0 {
		c.JSON(http.StatusBadRequest, models.Response[any]{HTTPCode: http.StatusBadRequest, Message: "token carries no player"})
		return
	}
	respond(c, games.JoinGame(c.Request.Context(), id, playerID))
}
