package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/redis"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "10", r.URL.Query().Get("videoCategoryId"))
		assert.Equal(t, "video", r.URL.Query().Get("type"))
		if r.URL.Query().Get("q") == "nothing" {
			_, _ = w.Write([]byte(`{"items":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":{"videoId":"fJ9rUzIMcZQ"}},{"id":{"videoId":"dQw4w9WgXcQ"}}]}`))
	})
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fJ9rUzIMcZQ,dQw4w9WgXcQ", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"items":[
			{"id":"fJ9rUzIMcZQ","snippet":{"title":"Queen - Bohemian Rhapsody","channelTitle":"Queen Official","thumbnails":{"medium":{"url":"https://i.ytimg.com/a.jpg"}}},"contentDetails":{"duration":"PT5M59S"}},
			{"id":"dQw4w9WgXcQ","snippet":{"title":"Never Gonna Give You Up","channelTitle":"Rick Astley","thumbnails":{"medium":{"url":"https://i.ytimg.com/b.jpg"}}},"contentDetails":{"duration":"PT3M33S"}}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient("test-key", redis.NewCache(nil), logger.NewNop()).WithBaseURL(srv.URL)

	videos, err := client.Search(context.Background(), "  bohemian rhapsody ")
	require.NoError(t, err)
	require.Len(t, videos, 2)

	assert.Equal(t, Video{
		ID:        "fJ9rUzIMcZQ",
		Title:     "Bohemian Rhapsody",
		Artist:    "Queen",
		Thumbnail: "https://i.ytimg.com/a.jpg",
		Duration:  359,
	}, videos[0])
	assert.Equal(t, "Rick Astley", videos[1].Artist)
	assert.Equal(t, 213, videos[1].Duration)
}

func TestSearchNoResults(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient("test-key", redis.NewCache(nil), logger.NewNop()).WithBaseURL(srv.URL)

	videos, err := client.Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, videos)
}

func TestSearchErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query", func(t *testing.T) {
		client := NewClient("test-key", redis.NewCache(nil), logger.NewNop())
		_, err := client.Search(ctx, "   ")
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})

	t.Run("no api key", func(t *testing.T) {
		client := NewClient("", redis.NewCache(nil), logger.NewNop())
		assert.False(t, client.Configured())
		_, err := client.Search(ctx, "queen")
		assert.ErrorIs(t, err, apperrors.ErrNotConfigured)
	})

	t.Run("upstream status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		client := NewClient("test-key", redis.NewCache(nil), logger.NewNop()).WithBaseURL(srv.URL)
		_, err := client.Search(ctx, "queen")

		var upstream *apperrors.UpstreamError
		require.True(t, errors.As(err, &upstream))
		assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
		assert.Equal(t, http.StatusForbidden, apperrors.HTTPStatus(err))
	})
}

func TestCacheKeyNormalizesQuery(t *testing.T) {
	assert.Equal(t, cacheKey("Bohemian  Rhapsody"), cacheKey(" bohemian rhapsody "))
}
