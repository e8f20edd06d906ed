package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/karaoke-session-system/internal/config"
	"github.com/karaoke-session-system/pkg/logger"
)

const (
	Pass = "pass"
	Warn = "warn"
	Fail = "fail"

	pingTimeout = 2 * time.Second
)

// Pinger is anything whose connectivity can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	cfg      *config.Config
	database Pinger
	cache    Pinger
	cacheOn  bool
	now      func() time.Time
}

func NewHandler(cfg *config.Config, database Pinger, cache Pinger, cacheEnabled bool) *Handler {
	return &Handler{
		cfg:      cfg,
		database: database,
		cache:    cache,
		cacheOn:  cacheEnabled,
		now:      time.Now,
	}
}

type Report struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	Environment string            `json:"environment"`
	Version     string            `json:"version"`
	Checks      map[string]string `json:"checks"`
	Details     Details           `json:"details"`
}

type Details struct {
	EnvironmentVariables map[string]bool `json:"environmentVariables"`
	Message              string          `json:"message"`
	Database             string          `json:"database,omitempty"`
	Cache                string          `json:"cache,omitempty"`
}

func (h *Handler) Check(c *gin.Context) {
	c.Header("Cache-Control", "no-store, max-age=0")
	defer func() {
		if r := recover(); r != nil {
			logger.GetGlobalLogger().Errorf("health check failed: %v", r)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":    "error",
				"timestamp": h.now().UTC().Format(time.RFC3339),
				"error":     fmt.Sprint(r),
			})
		}
	}()

	c.JSON(http.StatusOK, h.report(c.Request.Context()))
}

func (h *Handler) report(ctx context.Context) Report {
	env := h.cfg.RequiredEnvPresent()
	allPresent := true
	for _, ok := range env {
		allPresent = allPresent && ok
	}

	checks := map[string]string{
		"environmentVariables": Pass,
		"api":                  Pass,
		"database":             Pass,
		"cache":                Pass,
	}
	details := Details{
		EnvironmentVariables: env,
		Message:              "All required environment variables are set",
	}
	if !allPresent {
		checks["environmentVariables"] = Warn
		details.Message = "Some environment variables are missing"
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := h.database.Ping(ctx); err != nil {
		checks["database"] = Fail
		details.Database = err.Error()
	}

	switch {
	case !h.cacheOn:
		checks["cache"] = Warn
		details.Cache = "redis is not configured"
	case h.cache.Ping(ctx) != nil:
		checks["cache"] = Warn
		details.Cache = "redis is unreachable"
	}

	return Report{
		Status:      "ok",
		Timestamp:   h.now().UTC().Format(time.RFC3339),
		Environment: h.cfg.Env,
		Version:     h.cfg.Version,
		Checks:      checks,
		Details:     details,
	}
}
