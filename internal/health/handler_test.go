package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/internal/config"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type panicPinger struct{}

func (panicPinger) Ping(context.Context) error { panic("driver exploded") }

func testConfig() *config.Config {
	return &config.Config{
		Env:           "test",
		Version:       "1.2.3",
		AppURL:        "http://localhost:3000",
		StoreDriver:   config.StoreMemory,
		YouTubeAPIKey: "key",
		JWTSecret:     "secret",
	}
}

func serve(t *testing.T, h *Handler) (*httptest.ResponseRecorder, Report) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Check)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var report Report
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	}
	return w, report
}

func TestHealthCheck(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      func(*config.Config)
		database Pinger
		cache    Pinger
		cacheOn  bool
		expected map[string]string
	}{
		{
			name:     "all good",
			database: pinger{},
			cache:    pinger{},
			cacheOn:  true,
			expected: map[string]string{"environmentVariables": Pass, "api": Pass, "database": Pass, "cache": Pass},
		},
		{
			name:     "missing api key",
			cfg:      func(c *config.Config) { c.YouTubeAPIKey = "" },
			database: pinger{},
			cache:    pinger{},
			cacheOn:  true,
			expected: map[string]string{"environmentVariables": Warn, "api": Pass, "database": Pass, "cache": Pass},
		},
		{
			name:     "database down",
			database: pinger{err: errors.New("connection refused")},
			cache:    pinger{},
			cacheOn:  true,
			expected: map[string]string{"environmentVariables": Pass, "api": Pass, "database": Fail, "cache": Pass},
		},
		{
			name:     "cache not configured",
			database: pinger{},
			cache:    pinger{},
			cacheOn:  false,
			expected: map[string]string{"environmentVariables": Pass, "api": Pass, "database": Pass, "cache": Warn},
		},
		{
			name:     "cache unreachable",
			database: pinger{},
			cache:    pinger{err: errors.New("timeout")},
			cacheOn:  true,
			expected: map[string]string{"environmentVariables": Pass, "api": Pass, "database": Pass, "cache": Warn},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			if tc.cfg != nil {
				tc.cfg(cfg)
			}
			w, report := serve(t, NewHandler(cfg, tc.database, tc.cache, tc.cacheOn))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "no-store, max-age=0", w.Header().Get("Cache-Control"))
			assert.Equal(t, "ok", report.Status)
			assert.Equal(t, "test", report.Environment)
			assert.Equal(t, "1.2.3", report.Version)
			assert.Equal(t, tc.expected, report.Checks)
		})
	}
}

func TestHealthCheckRecoversFromPanic(t *testing.T) {
	w, _ := serve(t, NewHandler(testConfig(), panicPinger{}, pinger{}, true))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "driver exploded", body["error"])
	assert.NotEmpty(t, body["timestamp"])
}
