package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"downtime-backend/config"
	"downtime-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg config.ServerConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		if err := handler.ping(c); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Machine statuses change with every command, so the TTL stays short and
	// writes flush the cache.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Tenant(cfg.TenantHeader, cfg.AllowTenantWildcard), mw.InvalidateOnWrite(cacheStore))
	{
		api.GET("/machines", caching, handler.ListMachines)
		api.GET("/machines/:id", handler.GetMachine)

		api.POST("/stoppages", handler.OpenStoppage)
		api.GET("/stoppages", handler.ListStoppages)
		api.GET("/stoppages/:id", handler.GetStoppage)
		api.PATCH("/stoppages/:id", handler.EditStoppage)
		api.DELETE("/stoppages/:id", handler.DeleteStoppage)
		api.POST("/stoppages/:id/close", handler.CloseStoppage)
		api.POST("/stoppages/:id/reopen", handler.ReopenStoppage)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
