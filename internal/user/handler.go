package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/karaoke-session-system/internal/auth"
	"github.com/karaoke-session-system/internal/middleware"
	"github.com/karaoke-session-system/pkg/apperrors"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	me := r.Group("/users/me")
	{
		me.GET("", h.getMe)
		me.GET("/context", h.getContext)
		me.PUT("/context", h.putContext)
		me.DELETE("/context", h.deleteContext)
	}
	r.GET("/users/avatars", h.listAvatars)
}

func (h *Handler) getMe(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	user, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) getContext(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	sc, err := h.service.CurrentContext(c.Request.Context(), userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

type ContextRequest struct {
	SessionID *string `json:"session_id"`
}

func (h *Handler) putContext(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	var req ContextRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	var sessionID *uuid.UUID
	if req.SessionID != nil && *req.SessionID != "" {
		id, err := uuid.Parse(*req.SessionID)
		if err != nil {
			middleware.RespondError(c, apperrors.Wrap(apperrors.ErrInvalidArgument, "session_id must be a valid id"))
			return
		}
		sessionID = &id
	}

	sc, err := h.service.SetCurrentSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (h *Handler) deleteContext(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	if err := h.service.ClearContext(c.Request.Context(), userID); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listAvatars(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"avatars": Avatars, "default": DefaultAvatar})
}
