package middlewares

import (
	"net/http"
	"strings"

	"battlebots/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	playerIDKey = "playerID"
	roleKey     = "role"
)

// AuthMiddleware accepts requests carrying a valid bearer token. Tokens close
// to expiry are reissued in the Authorization response header.
func AuthMiddleware(signer *auth.Signer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			logger.Warn("Missing bearer token", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		claims, err := signer.Parse(tokenString)
		if err != nil {
			logger.Warn("Token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if signer.NeedsRefresh(claims) {
			newToken, err := signer.GenerateToken(claims.PlayerID, claims.Role)
			if err != nil {
				logger.Error("Token refresh failed", zap.Error(err))
			} else {
				c.Header("Authorization", "Bearer "+newToken)
			}
		}

		c.Set(playerIDKey, claims.PlayerID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// RequireRole lets through only tokens issued for role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(roleKey) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// PlayerID returns the player id stored by AuthMiddleware.
func PlayerID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(playerIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// bearerToken reads the token from the Authorization header, or from the
// token query parameter for websocket upgrades.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}
