package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"laundromat-backend/config"
	"laundromat-backend/internal/mw"
)

// NewRouter creates and configures the Gin router.
func NewRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/orders", h.CreateOrder)
		api.GET("/orders", h.ListOrders)
		api.GET("/orders/search", h.SearchOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.PATCH("/orders/:id/status", h.UpdateOrderStatus)

		api.GET("/machines", caching, h.ListMachines)
		api.GET("/machines/:id", h.GetMachine)
		api.GET("/machines/:id/statistics", h.GetMachineStatistics)

		api.GET("/washing_modes", caching, h.ListWashingModes)
		api.GET("/power_usage", h.GetPowerUsage)

		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
