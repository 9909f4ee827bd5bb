package handlers

import (
	"context"
	"errors"
	"net/http"

	"battlebots/auth"
	"battlebots/internal/store"
	"battlebots/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PlayerLookup finds the player a token is issued for.
type PlayerLookup interface {
	GetPlayer(ctx context.Context, id uint) (*models.Player, error)
}

type TokenRequest struct {
	PlayerID uint `json:"playerId" binding:"required"`
}

// GenerateToken issues a player token for an existing player.
func GenerateToken(players PlayerLookup, signer *auth.Signer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		player, err := players.GetPlayer(c.Request.Context(), req.PlayerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Player not found"})
				return
			}
			logger.Error("Failed to load player", zap.Uint("player", req.PlayerID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load player"})
			return
		}

		token, err := signer.GenerateToken(player.ID, auth.RolePlayer)
		if err != nil {
			logger.Error("Failed to generate token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}
