package handlers

import (
	"net/http"
	"time"

	"battlebots/auth"
	"battlebots/internal/websocket"
	"battlebots/middlewares"
	"battlebots/screens"
	"battlebots/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps are the services the HTTP layer dispatches to.
type RouterDeps struct {
	Games        GameService
	Players      PlayerLookup
	Catalog      screens.Catalog
	Hub          *websocket.Hub
	Signer       *auth.Signer
	Logger       *zap.Logger
	AllowOrigins []string
}

// SetupRouter wires every route. Handlers only translate HTTP; status codes
// come from the operation results.
func SetupRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger(d.Logger))
	if len(d.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     d.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Players != nil {
		router.POST("/api/auth/token", GenerateToken(d.Players, d.Signer, d.Logger))
	}

	authed := middlewares.AuthMiddleware(d.Signer, d.Logger)
	api := router.Group("/api", authed)

	games, logger := d.Games, d.Logger
	g := api.Group("/games")
	g.GET("", func(c *gin.Context) { listGames(c, games) })
	g.POST("", func(c *gin.Context) { saveGame(c, games, logger) })
	g.GET("/:id", func(c *gin.Context) { getGame(c, games, logger) })
	g.PUT("/:id", func(c *gin.Context) { updateGame(c, games, logger) })
	g.DELETE("/:id", func(c *gin.Context) { deleteGame(c, games, logger) })
	g.POST("/:id/end", func(c *gin.Context) { endGame(c, games, logger) })
	g.POST("/:id/start", func(c *gin.Context) { startGame(c, games, logger) })
	g.POST("/:id/stop", func(c *gin.Context) { stopGame(c, games, logger) })
	g.POST("/:id/join", func(c *gin.Context) { joinGame(c, games, logger) })
	g.PUT("/:id/arena/:arenaId", linkHandler(games.LinkArenaToGame, "arenaId", logger))
	g.PUT("/:id/streams/:streamId", linkHandler(games.LinkStreamToGame, "streamId", logger))
	g.PUT("/:id/bots/:botId", linkHandler(games.LinkBotToGame, "botId", logger))
	g.PUT("/:id/users/:userId", linkHandler(games.LinkUserToGame, "userId", logger))

	api.POST("/worker/games", middlewares.RequireRole(auth.RoleWorker), func(c *gin.Context) {
		workerUpdate(c, games, logger)
	})

	if d.Catalog != nil {
		screens.Register(api, d.Catalog, logger)
	}

	if d.Hub != nil {
		router.GET("/ws", authed, func(c *gin.Context) {
			playerID, _ := middlewares.PlayerID(c)
			d.Hub.HandleConnections(c.Writer, c.Request, playerID)
		})
	}
	return router
}
