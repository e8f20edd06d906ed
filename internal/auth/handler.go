package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/karaoke-session-system/internal/middleware"
	"github.com/karaoke-session-system/pkg/models"
)

// Registrar creates identities and signs tokens for them.
type Registrar interface {
	CreateUser(ctx context.Context, displayName, avatar string) (*models.User, string, error)
	IssueToken(userID uuid.UUID) (string, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Handler struct {
	users        Registrar
	secret       string
	expiry       time.Duration
	secureCookie bool
}

func NewHandler(users Registrar, secret string, expiry time.Duration, secureCookie bool) *Handler {
	return &Handler{
		users:        users,
		secret:       secret,
		expiry:       expiry,
		secureCookie: secureCookie,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, toucher Toucher) {
	auth := r.Group("/auth")
	{
		// Public routes
		auth.POST("/register", h.register)
		auth.POST("/logout", h.logout)

		// Protected routes (require authentication)
		protected := auth.Group("", AuthMiddleware(h.secret, toucher))
		protected.GET("/status", h.status)
		protected.POST("/refresh", h.refresh)
	}
}

type RegisterRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	AvatarEmoji string `json:"avatar_emoji"`
}

type TokenResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func (h *Handler) setCookie(c *gin.Context, token string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) register(c *gin.Context) {
	var req RegisterRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	user, token, err := h.users.CreateUser(c.Request.Context(), req.DisplayName, req.AvatarEmoji)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	h.setCookie(c, token, int(h.expiry.Seconds()))
	c.JSON(http.StatusCreated, TokenResponse{User: user, Token: token})
}

func (h *Handler) status(c *gin.Context) {
	userID, ok := MustUserID(c)
	if !ok {
		return
	}
	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "user": user})
}

func (h *Handler) refresh(c *gin.Context) {
	userID, ok := MustUserID(c)
	if !ok {
		return
	}
	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	token, err := h.users.IssueToken(user.ID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	h.setCookie(c, token, int(h.expiry.Seconds()))
	c.JSON(http.StatusOK, TokenResponse{User: user, Token: token})
}

func (h *Handler) logout(c *gin.Context) {
	h.setCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}
