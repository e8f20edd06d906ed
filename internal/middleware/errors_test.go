package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/pkg/apperrors"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		name         string
		err          error
		expectedCode int
		expectedBody ErrorResponse
	}{
		{
			name:         "validation message is passed through",
			err:          apperrors.Wrap(apperrors.ErrInvalidArgument, "title is required"),
			expectedCode: http.StatusBadRequest,
			expectedBody: ErrorResponse{Error: "invalid argument: title is required", Code: "INVALID_ARGUMENT"},
		},
		{
			name:         "internal error is hidden",
			err:          errors.New("dial tcp 10.0.0.1:3306: connection refused"),
			expectedCode: http.StatusInternalServerError,
			expectedBody: ErrorResponse{Error: "Something went wrong, please try again", Code: "INTERNAL_ERROR"},
		},
		{
			name:         "exhausted invitation",
			err:          apperrors.Wrap(apperrors.ErrExhausted, "invitation ABC"),
			expectedCode: http.StatusGone,
			expectedBody: ErrorResponse{Error: "Invitation has been fully used", Code: "EXHAUSTED"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/", func(c *gin.Context) { RespondError(c, tc.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tc.expectedCode, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.expectedBody, body)
		})
	}
}

func TestErrorHandlerRendersAttachedError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/", func(c *gin.Context) {
		_ = c.Error(apperrors.Wrap(apperrors.ErrNotFound, "session"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestUUIDParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/items/:id", func(c *gin.Context) {
		if _, ok := UUIDParam(c, "id"); !ok {
			return
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/2b1e6f1c-3c2a-4f7e-9a51-3d0f8f1c2e4a", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBindJSONHidesDecoderText(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sessions", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if !BindJSON(c, &req) {
			return
		}
		c.Status(http.StatusNoContent)
	})

	testCases := []struct {
		name string
		body string
	}{
		{"wrong type", `{"name": 5}`},
		{"malformed", `{"name":`},
		{"missing field", `{}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(tc.body)))
			require.Equal(t, http.StatusBadRequest, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "invalid argument: invalid request body", body.Error)
			assert.Equal(t, "INVALID_ARGUMENT", body.Code)
		})
	}
}
