package skipvote

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/karaoke-session-system/internal/auth"
	"github.com/karaoke-session-system/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	votes := r.Group("/sessions/:id/queue/:itemId/skip")
	{
		votes.POST("", h.toggle)
		votes.GET("", h.tally)
	}
}

func (h *Handler) toggle(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	sessionID, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := middleware.UUIDParam(c, "itemId")
	if !ok {
		return
	}

	result, err := h.service.CastOrRetract(c.Request.Context(), itemID, userID, sessionID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) tally(c *gin.Context) {
	itemID, ok := middleware.UUIDParam(c, "itemId")
	if !ok {
		return
	}
	tally, err := h.service.Tally(c.Request.Context(), itemID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tally)
}
