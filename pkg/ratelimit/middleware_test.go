package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLimitsPerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewStore(Config{RPS: 0.001, Burst: 2, MaxAge: time.Minute})

	r := gin.New()
	r.Use(Middleware(store))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCleanupEvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(Config{RPS: 1, Burst: 1, MaxAge: time.Minute})
	store.now = func() time.Time { return now }

	store.Allow("a")
	now = now.Add(2 * time.Minute)
	store.Allow("b")
	store.Cleanup()

	assert.Len(t, store.limiters, 1)
	assert.Contains(t, store.limiters, "b")
}
