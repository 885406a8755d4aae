package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"fuelwatch-backend/config"
	"fuelwatch-backend/internal/mw"
	"fuelwatch-backend/internal/store"
	syncengine "fuelwatch-backend/internal/sync"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, engine *syncengine.Engine, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, engine, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/stations", caching, handler.SearchStations)
		api.GET("/stations/:station_id/prices", caching, handler.GetCurrentPrices)
		api.GET("/stations/:station_id/prices/history", caching, handler.GetPriceHistory)

		api.GET("/prices/cheapest", caching, handler.GetCheapestPrice)
		api.GET("/prices/stats", caching, handler.GetPriceStats)

		api.GET("/sync/runs", handler.GetSyncRuns)
		api.POST("/sync/stations", handler.TriggerStationSync)
		api.POST("/sync/prices", handler.TriggerPriceSync)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
