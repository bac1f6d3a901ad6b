package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"farm-telemetry-backend/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(r http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCache(t *testing.T) {
	calls := 0
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/readings", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/missing", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusNotFound, gin.H{"error": "nope"})
	})

	w := get(r, "/readings?page=1")
	assert.Equal(t, "MISS", w.Header().Get(CacheStatusHeader))
	assert.JSONEq(t, `{"calls":1}`, w.Body.String())

	w = get(r, "/readings?page=1")
	assert.Equal(t, "HIT", w.Header().Get(CacheStatusHeader))
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"calls":1}`, w.Body.String())

	w = get(r, "/readings?page=2")
	assert.JSONEq(t, `{"calls":2}`, w.Body.String(), "query is part of the key")

	w = get(r, "/readings?page=1", "Cache-Control", "no-cache")
	assert.JSONEq(t, `{"calls":3}`, w.Body.String())

	get(r, "/missing")
	get(r, "/missing")
	assert.Equal(t, 5, calls, "errors are not cached")
}

func TestRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 2)
	r := gin.New()
	r.Use(RateLimiter(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/").Code)
	assert.Equal(t, http.StatusOK, get(r, "/").Code)
	w := get(r, "/")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestIPRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(rate.Limit(1), 1)
	limiter.now = func() time.Time { return now }

	limiter.GetLimiter("10.0.0.1")
	now = now.Add(5 * time.Minute)
	same := limiter.GetLimiter("10.0.0.2")
	require.Equal(t, 2, limiter.Len())

	assert.Equal(t, 1, limiter.Sweep(time.Minute))
	assert.Equal(t, 1, limiter.Len())
	assert.Same(t, same, limiter.GetLimiter("10.0.0.2"))
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New()
	r := gin.New()
	r.Use(AccessLog(zap.New(core), m))
	r.GET("/api/sensors/:key/history", func(c *gin.Context) { c.Status(http.StatusOK) })

	get(r, "/api/sensors/soil_moisture/history")
	get(r, "/nowhere")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "/api/sensors/:key/history", entries[0].ContextMap()["route"])
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
	assert.Equal(t, "unmatched", entries[1].ContextMap()["route"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `http_requests_total{route="/api/sensors/:key/history",status="200"} 1`)
}
