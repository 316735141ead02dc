package handlers

import (
	"net/http"

	"teamquiz/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type QuizHandler struct {
	views *services.Aggregator
	log   *zap.Logger
}

func NewQuizHandler(views *services.Aggregator, log *zap.Logger) *QuizHandler {
	return &QuizHandler{
		views: views,
		log:   log,
	}
}

// GetQuestions returns the public question set with the game state, the same payload
// players receive as questions_payload.
func (h *QuizHandler) GetQuestions(c *gin.Context) {
	view, err := h.views.PublicView(c.Request.Context())
	if err != nil {
		h.log.Error("failed to load questions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load questions"})
		return
	}

	c.JSON(http.StatusOK, services.QuestionsPayload{Questions: view.Questions, Game: view.Game})
}
