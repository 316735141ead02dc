package routes

import (
	"net/http"

	"teamquiz/handlers"
	"teamquiz/middleware"
	"teamquiz/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func SetupRoutes(
	router *gin.Engine,
	gameHandler *handlers.GameHandler,
	quizHandler *handlers.QuizHandler,
	hub *services.Hub,
	admins middleware.AdminVerifier,
	log *zap.Logger,
) {
	api := router.Group("/api")
	{
		api.GET("/state", gameHandler.GetState)
		api.GET("/questions", quizHandler.GetQuestions)

		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuth(admins))
		{
			admin.GET("/state", gameHandler.GetAdminState)
		}
	}

	// One socket per browser tab; identity is established by join_player, resume or admin_login.
	router.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		if client := hub.RegisterClient(conn); client != nil {
			log.Debug("websocket connection established", zap.String("conn", client.ID()), zap.String("remote", c.ClientIP()))
		}
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
