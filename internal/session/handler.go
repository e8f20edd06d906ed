package session

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
	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.createSession)
		sessions.POST("/join", h.joinByCode)
		sessions.GET("/code/:code", h.resolveSession)
		sessions.GET("/:id", h.getSession)
		sessions.POST("/:id/close", h.closeSession)
		sessions.POST("/:id/join", h.join)
		sessions.POST("/:id/leave", h.leave)
		sessions.GET("/:id/participants", h.listParticipants)
	}
}

type CreateSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) createSession(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), req.Name, userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *Handler) resolveSession(c *gin.Context) {
	session, err := h.service.ResolveSession(c.Request.Context(), c.Param("code"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) getSession(c *gin.Context) {
	id, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	session, err := h.service.GetSession(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) closeSession(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	id, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	session, err := h.service.CloseSession(c.Request.Context(), id, userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

type JoinByCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) joinByCode(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	var req JoinByCodeRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	session, err := h.service.ResolveSession(c.Request.Context(), req.Code)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	participant, created, err := h.service.Join(c.Request.Context(), session.ID, userID, nil)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session, "participant": participant, "created": created})
}

func (h *Handler) join(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	id, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	participant, created, err := h.service.Join(c.Request.Context(), id, userID, nil)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"participant": participant, "created": created})
}

func (h *Handler) leave(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	id, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.Leave(c.Request.Context(), id, userID); err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) listParticipants(c *gin.Context) {
	id, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	users, err := h.service.ListParticipants(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}
