package handlers

import (
	"context"

	"battlebots/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type linkFunc func(ctx context.Context, otherID, gameID uint) models.Response[*models.GameResource]

// linkHandler serves PUT /api/games/:id/<relation>/:<param>.
func linkHandler(link linkFunc, param string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		gameID, ok := paramID(c, logger, "id")
		if !ok {
			return
		}
		otherID, ok := paramID(c, logger, param)
		if !ok {
			return
		}
		respond(c, link(c.Request.Context(), otherID, gameID))
	}
}
