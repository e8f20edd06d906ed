package invitation

import (
	"net/http"
	"time"

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
	r.POST("/sessions/:id/invitations", h.issue)
	r.POST("/invitations/:code/redeem", h.redeem)
	r.GET("/invitations/link/:sessionCode", h.link)
}

type IssueRequest struct {
	UsesRemaining *int       `json:"uses_remaining"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

type IssueResponse struct {
	Invitation *models.SessionInvitation `json:"invitation"`
	Link       string                    `json:"link"`
}

func (h *Handler) issue(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	sessionID, ok := middleware.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req IssueRequest
	if c.Request.ContentLength != 0 && !middleware.BindJSON(c, &req) {
		return
	}

	invitation, err := h.service.Issue(c.Request.Context(), sessionID, userID, req.UsesRemaining, req.ExpiresAt)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	session, err := h.service.roster.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, IssueResponse{
		Invitation: invitation,
		Link:       h.service.GenerateShareableLink(session.Code),
	})
}

func (h *Handler) redeem(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	redemption, err := h.service.Redeem(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, redemption)
}

func (h *Handler) link(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"link": h.service.GenerateShareableLink(c.Param("sessionCode"))})
}
