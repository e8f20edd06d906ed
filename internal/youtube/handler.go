package youtube

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/karaoke-session-system/internal/middleware"
)

// Searcher looks up karaoke videos.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Video, error)
}

type Handler struct {
	searcher Searcher
}

func NewHandler(searcher Searcher) *Handler {
	return &Handler{searcher: searcher}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/songs/search", h.search)
}

func (h *Handler) search(c *gin.Context) {
	videos, err := h.searcher.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, videos)
}
