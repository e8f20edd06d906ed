package queue

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/karaoke-session-system/internal/auth"
	"github.com/karaoke-session-system/internal/middleware"
	"github.com/karaoke-session-system/pkg/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions/:id/queue")
	{
		sessions.POST("", h.enqueue)
		sessions.GET("", h.list)
		sessions.GET("/now-playing", h.nowPlaying)
		sessions.GET("/next", h.next)
	}

	items := r.Group("/queue/:itemId")
	{
		items.POST("/play", h.play)
		items.POST("/finish", h.finish)
		items.DELETE("", h.remove)
		items.POST("/reactions", h.react)
		items.GET("/reactions", h.reactions)
	}
}

func (h *Handler) enqueue(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	sessionID, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req SongInput
	if !middleware.BindJSON(c, &req) {
		return
	}

	item, err := h.service.Enqueue(c.Request.Context(), sessionID, req, userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (h *Handler) list(c *gin.Context) {
	sessionID, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	items, err := h.service.List(c.Request.Context(), sessionID, Filter(c.DefaultQuery("filter", string(FilterAll))))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

func (h *Handler) nowPlaying(c *gin.Context) {
	sessionID, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.service.NowPlaying(c.Request.Context(), sessionID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (h *Handler) next(c *gin.Context) {
	sessionID, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.service.Next(c.Request.Context(), sessionID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (h *Handler) play(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	itemID, ok := middleware.UUIDParam(c, "itemId")
	if !ok {
		return
	}
	if _, err := h.service.RequireItemMember(c.Request.Context(), itemID, userID); err != nil {
		middleware.RespondError(c, err)
		return
	}

	item, err := h.service.StartPlayback(c.Request.Context(), itemID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

type FinishRequest struct {
	Outcome models.QueueStatus `json:"outcome" binding:"required"`
}

func (h *Handler) finish(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	itemID, ok := middleware.UUIDParam(c, "itemId")
	if !ok {
		return
	}
	var req FinishRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	if _, err := h.service.RequireItemMember(c.Request.Context(), itemID, userID); err != nil {
		middleware.RespondError(c, err)
		return
	}

	item, err := h.service.CompleteOrSkip(c.Request.Context(), itemID, req.Outcome)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *Handler) remove(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	itemID, ok := middleware.UUIDParam(c, "itemId")
	if !ok {
		return
	}
	if err := h.service.Remove(c.Request.Context(), itemID, userID); err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type ReactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (h *Handler) react(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	itemID, ok := middleware.UUIDParam(c, "itemId")
	if !ok {
		return
	}
	var req ReactRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	rating, err := h.service.React(c.Request.Context(), itemID, userID, req.Emoji)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rating)
}

func (h *Handler) reactions(c *gin.Context) {
	itemID, ok := middleware.UUIDParam(c, "itemId")
	if !ok {
		return
	}
	counts, err := h.service.Reactions(c.Request.Context(), itemID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"counts": counts, "emojis": ReactionEmojis})
}
