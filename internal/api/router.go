package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"farm-telemetry-backend/internal/mw"
)

// RouterOptions tune the middleware of the router.
type RouterOptions struct {
	RateLimit  rate.Limit
	RateBurst  int
	CacheTTL   time.Duration // zero disables response caching
	LimiterTTL time.Duration

	// ClientIPHeader is trusted for the client address when set, e.g. CF-Connecting-IP.
	ClientIPHeader string
}

// DefaultRouterOptions allow 10 requests per second with a burst of 5 and
// cache read-mostly answers briefly.
func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		RateLimit:  rate.Limit(10),
		RateBurst:  5,
		CacheTTL:   5 * time.Second,
		LimiterTTL: 10 * time.Minute,
	}
}

// NewRouter creates and configures a new Gin router. Idle rate limiter entries
// are swept until ctx is done.
func NewRouter(ctx context.Context, h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	if opts.ClientIPHeader != "" {
		r.TrustedPlatform = opts.ClientIPHeader
	}
	r.Use(gin.Recovery(), mw.AccessLog(h.log, h.metrics))

	limiter := mw.NewIPRateLimiter(opts.RateLimit, opts.RateBurst)
	rateLimiter := mw.RateLimiter(limiter)

	caching := func(c *gin.Context) { c.Next() }
	if opts.CacheTTL > 0 {
		caching = mw.Cache(cache.New(opts.CacheTTL, 2*opts.CacheTTL), opts.CacheTTL)
	}

	r.GET("/healthz", h.Healthz)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/sensors", caching, h.GetSensors)
		api.GET("/sensors/:key/history", caching, h.GetSensorHistory)
		api.GET("/sensors/:key/history/export", h.ExportSensorHistory)

		// The aggregate collection lives outside /sensors so it cannot collide with :key.
		api.GET("/aggregate", h.GetAggregate)
		api.GET("/aggregate/export", h.ExportAggregate)

		api.GET("/diseases", caching, h.GetDiseases)
		api.GET("/diseases/:disease", caching, h.GetDisease)

		api.GET("/system/timestamp", h.GetSystemTimestamp)
		api.POST("/system/timestamp", h.PostSystemTimestamp)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	go sweepLimiter(ctx, limiter, opts.LimiterTTL)
	return r
}

func sweepLimiter(ctx context.Context, l *mw.IPRateLimiter, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(idle)
		}
	}
}
