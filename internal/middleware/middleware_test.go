package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agora-chat/internal/services"
	"agora-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

type authFunc func(token string) (uuid.UUID, error)

func (f authFunc) Authenticate(token string) (uuid.UUID, error) { return f(token) }

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()
	auth := authFunc(func(token string) (uuid.UUID, error) {
		if token == "good" {
			return userID, nil
		}
		return uuid.Nil, errors.New("bad token")
	})

	router := setupTestRouter()
	router.GET("/me", AuthMiddleware(auth), func(c *gin.Context) {
		id, ok := services.UserIDFromContext(c.Request.Context())
		assert.True(t, ok)
		c.String(http.StatusOK, id.String())
	})

	cases := []struct {
		header string
		status int
	}{
		{"Bearer good", http.StatusOK},
		{"bearer good", http.StatusOK},
		{"Bearer bad", http.StatusUnauthorized},
		{"good", http.StatusUnauthorized},
		{"", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, tc.header)
		if tc.status == http.StatusOK {
			assert.Equal(t, userID.String(), w.Body.String())
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	router := setupTestRouter()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		id, _ := c.Request.Context().Value(logger.RequestIdKey).(string)
		c.String(http.StatusOK, id)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get("X-Request-Id")
	assert.Len(t, generated, 32)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "caller-supplied", w.Header().Get("X-Request-Id"))
}

func TestErrorHandler(t *testing.T) {
	router := setupTestRouter()
	router.Use(ErrorHandler(logger.NewNop()))
	router.GET("/silent", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	router.GET("/written", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/silent", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRecovery(t *testing.T) {
	router := setupTestRouter()
	router.Use(Recovery(logger.NewNop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestCORSPreflight(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORSMiddleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMessageRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	router := setupTestRouter()
	router.POST("/send", MessageRateLimitMiddleware(nil), func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/send", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
}
