package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"smart-building-backend/config"
	"smart-building-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	perSec := cfg.RateLimitPerSec
	if perSec <= 0 {
		perSec = 10
	}
	rateLimiter := mw.RateLimiter(rate.Limit(perSec), 5)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	csrf := mw.CSRF(cfg.CSRFToken)

	// Overtime lifecycle endpoints, driven by the operator frontend.
	ot := r.Group("/overtime")
	ot.Use(rateLimiter)
	{
		ot.POST("/:id/auto-start", csrf, h.AutoStart)
		ot.POST("/:id/auto-complete", csrf, h.AutoComplete)
		ot.POST("/:id/cutoff", csrf, h.CutoffOvertime)
		ot.GET("/status-check", h.StatusCheck)
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/check-schedules", csrf, h.CheckSchedules)

		api.GET("/relay-status", h.RelayStatus)
		api.POST("/relays/:id", csrf, h.SetRelay)
		api.POST("/sos", csrf, h.SetSOS)

		api.GET("/schedules", h.ListSchedules)
		api.POST("/schedules", csrf, h.CreateSchedule)
		api.PUT("/schedules/:id", csrf, h.UpdateSchedule)
		api.DELETE("/schedules/:id", csrf, h.DeleteSchedule)

		api.GET("/overtime", h.ListOvertime)
		api.GET("/overtime/:id", h.GetOvertime)
		api.POST("/overtime", csrf, h.CreateOvertime)
		api.PUT("/overtime/:id", csrf, h.UpdateOvertime)
		api.DELETE("/overtime/:id", csrf, h.DeleteOvertime)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", csrf, h.PutSubscription)
		api.DELETE("/subscriptions", csrf, h.DeleteSubscription)
		api.GET("/vapid_public_key", caching, h.GetVAPIDPublicKey)
	}

	return r
}
