package challenge

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
	r.POST("/sessions/:id/challenges", h.create)
	r.GET("/sessions/:id/challenges", h.list)

	challenges := r.Group("/challenges/:challengeId")
	{
		challenges.GET("", h.get)
		challenges.POST("/respond", h.respond)
		challenges.POST("/complete", h.complete)
	}
}

type CreateChallengeRequest struct {
	ChallengedID uuid.UUID `json:"challenged_id" binding:"required"`
	SongID       uuid.UUID `json:"song_id" binding:"required"`
	Message      string    `json:"message"`
}

func (h *Handler) create(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	sessionID, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req CreateChallengeRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	challenge, err := h.service.Create(c.Request.Context(), sessionID, userID, req.ChallengedID, req.SongID, req.Message)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, challenge)
}

func (h *Handler) list(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	sessionID, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	challenges, err := h.service.List(c.Request.Context(), sessionID, userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, challenges)
}

func (h *Handler) get(c *gin.Context) {
	challengeID, ok := middleware.UUIDParam(c, "challengeId")
	if !ok {
		return
	}
	challenge, err := h.service.Get(c.Request.Context(), challengeID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, challenge)
}

type RespondRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

func (h *Handler) respond(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	challengeID, ok := middleware.UUIDParam(c, "challengeId")
	if !ok {
		return
	}
	var req RespondRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	challenge, err := h.service.Respond(c.Request.Context(), challengeID, userID, *req.Accept)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, challenge)
}

type CompleteRequest struct {
	QueueItemID uuid.UUID `json:"queue_item_id" binding:"required"`
}

func (h *Handler) complete(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	challengeID, ok := middleware.UUIDParam(c, "challengeId")
	if !ok {
		return
	}
	var req CompleteRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	existing, err := h.service.Get(c.Request.Context(), challengeID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if userID != existing.ChallengerID && userID != existing.ChallengedID {
		middleware.RespondError(c, apperrors.Wrap(apperrors.ErrForbidden, "not part of this challenge"))
		return
	}

	challenge, err := h.service.Complete(c.Request.Context(), challengeID, req.QueueItemID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, challenge)
}
