package handlers

import (
	"net/http"

	"teamquiz/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GameHandler struct {
	views *services.Aggregator
	log   *zap.Logger
}

func NewGameHandler(views *services.Aggregator, log *zap.Logger) *GameHandler {
	return &GameHandler{
		views: views,
		log:   log,
	}
}

// GetState serves the public view: roster, question content and game state.
func (h *GameHandler) GetState(c *gin.Context) {
	view, err := h.views.PublicView(c.Request.Context())
	if err != nil {
		h.log.Error("failed to build public view", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load state"})
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetAdminState serves the admin view. The route is guarded by the admin token middleware.
func (h *GameHandler) GetAdminState(c *gin.Context) {
	view, err := h.views.AdminView(c.Request.Context())
	if err != nil {
		h.log.Error("failed to build admin view", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load admin state"})
		return
	}

	c.JSON(http.StatusOK, view)
}
