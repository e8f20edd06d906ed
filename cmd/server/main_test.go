package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/internal/auth"
	"github.com/karaoke-session-system/internal/config"
	"github.com/karaoke-session-system/internal/user"
	"github.com/karaoke-session-system/pkg/database"
	"github.com/karaoke-session-system/pkg/database/memstore"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/models"
	"github.com/karaoke-session-system/pkg/redis"
)

type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:            "test",
		AppURL:         "https://karaoke.example.com",
		StoreDriver:    config.StoreMemory,
		JWTSecret:      "test-secret",
		JWTExpiry:      time.Hour,
		CORSOrigins:    []string{"https://karaoke.example.com"},
		RequestTimeout: 5 * time.Second,
	}
	log := logger.NewNop()
	feed := events.NewFeed(0, log)
	var store database.Store = memstore.New()
	return buildRouter(cfg, store, redis.NewCache(nil), user.NewMemoryContextStore(), feed, feed, log)
}

func (c *client) do(method, path string, body interface{}, out interface{}) int {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	if out != nil && w.Code < 300 {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func register(t *testing.T, router *gin.Engine, name string) (*client, models.User) {
	t.Helper()
	c := &client{t: t, router: router}
	var resp auth.TokenResponse
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/auth/register", map[string]string{"display_name": name}, &resp))
	require.NotEmpty(t, resp.Token)
	c.token = resp.Token
	return c, *resp.User
}

func TestKaraokeNight(t *testing.T) {
	router := newTestRouter(t)
	host, _ := register(t, router, "Host")
	guest, guestUser := register(t, router, "Guest")

	var session models.Session
	require.Equal(t, http.StatusCreated, host.do(http.MethodPost, "/sessions", map[string]string{"name": "Friday Night"}, &session))
	assert.Len(t, session.Code, 8)

	var joined struct {
		Session models.Session `json:"session"`
		Created bool           `json:"created"`
	}
	require.Equal(t, http.StatusOK, guest.do(http.MethodPost, "/sessions/join", map[string]string{"code": strings.ToLower(session.Code)}, &joined))
	assert.Equal(t, session.ID, joined.Session.ID)
	assert.True(t, joined.Created)

	var roster []models.User
	require.Equal(t, http.StatusOK, guest.do(http.MethodGet, "/sessions/"+session.ID.String()+"/participants", nil, &roster))
	require.Len(t, roster, 2)
	assert.Equal(t, guestUser.ID, roster[1].ID)

	queuePath := "/sessions/" + session.ID.String() + "/queue"
	var first, second models.QueueItem
	require.Equal(t, http.StatusCreated, guest.do(http.MethodPost, queuePath, map[string]string{"youtube_id": "fJ9rUzIMcZQ", "title": "Bohemian Rhapsody"}, &first))
	require.Equal(t, http.StatusCreated, host.do(http.MethodPost, queuePath, map[string]string{"youtube_id": "dQw4w9WgXcQ", "title": "Never Gonna Give You Up"}, &second))
	assert.Equal(t, 0, first.QueuePosition)
	assert.Equal(t, 1, second.QueuePosition)

	var playing models.QueueItem
	require.Equal(t, http.StatusOK, host.do(http.MethodPost, "/queue/"+first.ID.String()+"/play", nil, &playing))
	assert.Equal(t, models.QueueStatusPlaying, playing.Status)

	assert.Equal(t, http.StatusConflict, host.do(http.MethodPost, "/queue/"+second.ID.String()+"/play", nil, nil))

	var done models.QueueItem
	require.Equal(t, http.StatusOK, host.do(http.MethodPost, "/queue/"+first.ID.String()+"/finish", map[string]string{"outcome": "completed"}, &done))
	assert.Equal(t, models.QueueStatusCompleted, done.Status)
	assert.NotNil(t, done.PlayedAt)

	var queued, all []models.QueueItemDetails
	require.Equal(t, http.StatusOK, guest.do(http.MethodGet, queuePath+"?filter=queued", nil, &queued))
	require.Equal(t, http.StatusOK, guest.do(http.MethodGet, queuePath, nil, &all))
	require.Len(t, queued, 1)
	assert.Equal(t, second.ID, queued[0].ID)
	assert.Len(t, all, 2)
	assert.Equal(t, "Bohemian Rhapsody", all[0].Song.Title)

	// Both participants voting reaches the threshold and skips the song.
	require.Equal(t, http.StatusOK, host.do(http.MethodPost, "/queue/"+second.ID.String()+"/play", nil, nil))
	skipPath := queuePath + "/" + second.ID.String() + "/skip"
	var vote struct {
		Voted         bool `json:"voted"`
		SkipTriggered bool `json:"skip_triggered"`
		VoteCount     int  `json:"vote_count"`
	}
	require.Equal(t, http.StatusOK, guest.do(http.MethodPost, skipPath, nil, &vote))
	assert.True(t, vote.Voted)
	assert.True(t, vote.SkipTriggered)
	assert.Equal(t, 1, vote.VoteCount)

	var nowPlaying struct {
		Item *models.QueueItemDetails `json:"item"`
	}
	require.Equal(t, http.StatusOK, guest.do(http.MethodGet, queuePath+"/now-playing", nil, &nowPlaying))
	assert.Nil(t, nowPlaying.Item)

	assert.Equal(t, http.StatusForbidden, guest.do(http.MethodPost, "/sessions/"+session.ID.String()+"/close", nil, nil))
	require.Equal(t, http.StatusOK, host.do(http.MethodPost, "/sessions/"+session.ID.String()+"/close", nil, nil))
	assert.Equal(t, http.StatusNotFound, guest.do(http.MethodGet, "/sessions/code/"+session.Code, nil, nil))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)
	anon := &client{t: t, router: router}

	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodPost, "/sessions", map[string]string{"name": "x"}, nil))
	assert.Equal(t, http.StatusBadRequest, anon.do(http.MethodPost, "/auth/register", map[string]string{}, nil))
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
