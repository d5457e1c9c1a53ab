package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"finfare-backend/config"
	"finfare-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	handler := NewHandler(d)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	// Devices connect here; they carry no caller identity.
	r.GET("/ws/:unique_address", handler.ServeDevice)

	public := r.Group("/api")
	public.Use(rateLimiter)
	{
		public.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	api := r.Group("/api")
	api.Use(mw.Identity(cfg.IdentityHeader), rateLimiter)
	{
		api.POST("/devices/:aquarium_id", handler.CreateDevice)
		api.GET("/devices/:aquarium_id", handler.GetDevice)
		api.PUT("/devices/:aquarium_id", handler.UpdateDevice)
		api.POST("/devices/:aquarium_id/activate", handler.ActivateDevice)
		api.POST("/devices/:aquarium_id/deactivate", handler.DeactivateDevice)

		api.GET("/devices/:aquarium_id/food-patches", handler.ListFoodPatches)
		api.POST("/devices/:aquarium_id/food-patches", handler.CreateFoodPatch)
		api.PUT("/devices/:aquarium_id/food-patches/:patch_id", handler.UpdateFoodPatch)
		api.DELETE("/devices/:aquarium_id/food-patches/:patch_id", handler.DeleteFoodPatch)

		api.GET("/aquariums/:aquarium_id/feeding-schedules", handler.ListFeedingSchedules)
		api.POST("/aquariums/:aquarium_id/feeding-schedules", handler.CreateFeedingSchedule)
		api.GET("/feeding-schedules/:schedule_id", handler.GetFeedingSchedule)
		api.PUT("/feeding-schedules/:schedule_id", handler.UpdateFeedingSchedule)
		api.DELETE("/feeding-schedules/:schedule_id", handler.DeleteFeedingSchedule)

		api.POST("/aquariums/:aquarium_id/feed-now", handler.FeedNow)

		api.GET("/aquariums/:aquarium_id/water-parameters", caching, handler.ListWaterParameters)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	return r
}
