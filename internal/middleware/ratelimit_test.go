package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowPerKey(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)

	assert.True(t, l.Allow("user:1"))
	assert.True(t, l.Allow("user:1"))
	assert.False(t, l.Allow("user:1"))

	// Another key has its own window.
	assert.True(t, l.Allow("user:2"))
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	l := NewRateLimiter(1, 30*time.Millisecond)

	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, l.Allow("k"))
}

func TestRateLimitByUserKeysOnUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewRateLimiter(1, time.Minute)

	router := gin.New()
	router.POST("/pay", func(c *gin.Context) {
		c.Set("user_id", uint(42))
		c.Next()
	}, RateLimitByUser(l), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	do := func(ip string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/pay", nil)
		req.RemoteAddr = ip + ":1234"
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, do("10.0.0.1"))
	// Same user from a different address still shares the budget.
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.2"))
}
