package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/metrics"
	"github.com/karaoke-session-system/pkg/redis"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	musicCategory  = "10"
	maxResults     = 10
	searchCacheTTL = time.Hour
	searchCacheKey = "yt:search:"
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *redis.Cache
	log        *logger.Logger
}

// Video is one search result, ready to be queued.
type Video struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type snippet struct {
	Title        string `json:"title"`
	ChannelTitle string `json:"channelTitle"`
	Thumbnails   struct {
		Default thumbnail `json:"default"`
		Medium  thumbnail `json:"medium"`
		High    thumbnail `json:"high"`
	} `json:"thumbnails"`
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID             string  `json:"id"`
		Snippet        snippet `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func NewClient(apiKey string, cache *redis.Cache, log *logger.Logger) *Client {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
		log:        log,
	}
}

// WithBaseURL points the client at another API root.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Configured() bool {
	return c.apiKey != ""
}

func cacheKey(query string) string {
	return searchCacheKey + strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Search finds music videos for query and resolves their durations.
func (c *Client) Search(ctx context.Context, query string) ([]Video, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, "query parameter is required")
	}
	if !c.Configured() {
		metrics.RecordYouTubeSearch("error")
		return nil, apperrors.Wrap(apperrors.ErrNotConfigured, "youtube api key is not set")
	}

	var cached []Video
	hit, err := c.cache.GetJSON(ctx, cacheKey(query), &cached)
	if err != nil {
		c.log.Warnf("search cache read failed: %v", err)
	}
	if hit {
		metrics.RecordYouTubeSearch("cached")
		return cached, nil
	}

	videos, err := c.search(ctx, query)
	if err != nil {
		metrics.RecordYouTubeSearch("error")
		return nil, err
	}
	metrics.RecordYouTubeSearch("ok")

	if err := c.cache.SetJSON(ctx, cacheKey(query), videos, searchCacheTTL); err != nil {
		c.log.Warnf("failed to cache search results: %v", err)
	}
	return videos, nil
}

func (c *Client) search(ctx context.Context, query string) ([]Video, error) {
	params := url.Values{}
	params.Add("part", "snippet")
	params.Add("q", query)
	params.Add("type", "video")
	params.Add("maxResults", fmt.Sprintf("%d", maxResults))
	params.Add("videoCategoryId", musicCategory)
	params.Add("key", c.apiKey)

	var found searchResponse
	if err := c.get(ctx, "/search", params, &found); err != nil {
		return nil, err
	}
	if len(found.Items) == 0 {
		return []Video{}, nil
	}

	ids := make([]string, 0, len(found.Items))
	for _, item := range found.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return []Video{}, nil
	}

	params = url.Values{}
	params.Add("part", "contentDetails,snippet")
	params.Add("id", strings.Join(ids, ","))
	params.Add("key", c.apiKey)

	var details videosResponse
	if err := c.get(ctx, "/videos", params, &details); err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(details.Items))
	for _, item := range details.Items {
		artist, title := SplitTitle(item.Snippet.Title, item.Snippet.ChannelTitle)
		videos = append(videos, Video{
			ID:        item.ID,
			Title:     title,
			Artist:    artist,
			Thumbnail: item.Snippet.Thumbnails.Medium.URL,
			Duration:  ParseDuration(item.ContentDetails.Duration),
		})
	}
	return videos, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return apperrors.Wrap(apperrors.ErrTimeout, "youtube %s: %v", path, err)
		}
		return fmt.Errorf("youtube %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Errorf("youtube %s failed with status %d", path, resp.StatusCode)
		return &apperrors.UpstreamError{Service: "youtube", StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("youtube %s: failed to decode response: %w", path, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
