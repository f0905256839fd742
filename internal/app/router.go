package app

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rapidride/internal/config"
	"rapidride/internal/handler"
	"rapidride/internal/middleware"
	"rapidride/internal/realtime"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler    *handler.RideHandler
	DriverHandler  *handler.DriverHandler
	AccountHandler *handler.AccountHandler
	SupportHandler *handler.SupportHandler
	HealthHandler  *handler.HealthHandler
	SocketHandler  *realtime.Handler
	Authenticator  middleware.Authenticator
	Limiter        middleware.Limiter
	RateLimits     config.RateLimitConfig
	Origins        *middleware.OriginPolicy
	Replays        middleware.ReplayStore // optional
	NewRelicApp    *newrelic.Application
	Logger         *slog.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS(deps.Origins))
	router.Use(middleware.SecurityHeaders())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicRequestID())
	}

	// Operational routes.
	router.GET("/health", deps.HealthHandler.Live)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", deps.SocketHandler.ServeWS)

	api := router.Group("/api")
	api.Use(middleware.RateLimit(deps.Limiter, "api", deps.RateLimits.APIRequests, deps.RateLimits.APIWindow,
		"Too many requests, please slow down", deps.Logger))

	api.GET("/health", deps.HealthHandler.Check)

	authLimit := middleware.RateLimit(deps.Limiter, "auth", deps.RateLimits.AuthRequests, deps.RateLimits.AuthWindow,
		"Too many authentication attempts, please try again later", deps.Logger)
	requireAuth := middleware.Auth(deps.Authenticator)
	idempotent := middleware.Idempotency(deps.Replays, deps.Logger)
	adminOnly := middleware.RequireAdmin()

	// Auth routes.
	auth := api.Group("/auth")
	{
		auth.POST("/session", authLimit, deps.AccountHandler.Session)
		auth.POST("/logout", deps.AccountHandler.Logout)

		authed := auth.Group("", requireAuth, idempotent)
		authed.POST("/complete-profile", deps.AccountHandler.CompleteProfile)
		authed.GET("/me", deps.AccountHandler.Me)
		authed.PUT("/profile", deps.AccountHandler.UpdateProfile)
		authed.PUT("/avatar", deps.AccountHandler.UpdateAvatar)
		authed.POST("/link-phone", deps.AccountHandler.LinkPhone)
		authed.GET("/stats", deps.AccountHandler.Stats)
		authed.GET("/stats/today", deps.AccountHandler.TodayStats)
		authed.GET("/places", deps.AccountHandler.Places)
		authed.POST("/places", deps.AccountHandler.AddPlace)
		authed.DELETE("/places", deps.AccountHandler.DeletePlace)
		authed.GET("/admin/users", adminOnly, deps.AccountHandler.AdminUsers)
	}

	// Ride routes.
	rides := api.Group("/rides", requireAuth, idempotent)
	{
		rides.POST("/estimate", deps.RideHandler.Estimate)
		rides.POST("/request", deps.RideHandler.RequestRide)
		rides.GET("/current", deps.RideHandler.Current)
		rides.GET("/history", deps.RideHandler.History)
		rides.GET("/status", deps.RideHandler.Status)
		rides.GET("/stats", deps.RideHandler.Stats)
		rides.GET("/route", deps.RideHandler.Route)
		rides.POST("/geocode", deps.RideHandler.Geocode)
		rides.POST("/clear-active", deps.RideHandler.ClearActive)

		rides.GET("/admin/active", adminOnly, deps.RideHandler.AdminActive)
		rides.GET("/admin/all", adminOnly, deps.RideHandler.AdminAll)
		rides.GET("/admin/count", adminOnly, deps.RideHandler.AdminCount)

		rides.GET("/:rideId", deps.RideHandler.GetRide)
		rides.POST("/:rideId/accept", deps.RideHandler.Accept)
		rides.POST("/:rideId/arrived", deps.RideHandler.Arrived)
		rides.POST("/:rideId/start", deps.RideHandler.Start)
		rides.POST("/:rideId/complete", deps.RideHandler.Complete)
		rides.POST("/:rideId/cancel", deps.RideHandler.Cancel)
		rides.POST("/:rideId/rate", deps.RideHandler.Rate)
	}

	// Support chat routes.
	support := api.Group("/support", requireAuth, idempotent)
	{
		support.POST("/chats/create", deps.SupportHandler.OpenChat)
		support.GET("/chats", deps.SupportHandler.MyChats)
		support.GET("/chats/:chatId", deps.SupportHandler.Chat)
		support.POST("/chats/:chatId/messages", deps.SupportHandler.Send)
		support.POST("/chats/:chatId/end", deps.SupportHandler.End)
		support.GET("/admin/chats", adminOnly, deps.SupportHandler.AdminChats)
	}

	// Driver routes.
	driver := api.Group("/driver", requireAuth)
	{
		driver.POST("/location", deps.DriverHandler.UpdateLocation)
	}

	return router
}
