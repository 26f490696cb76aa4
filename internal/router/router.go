package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/handler"
	"github.com/stemsi/quizroom/internal/middleware"
	"github.com/stemsi/quizroom/internal/response"
	"github.com/stemsi/quizroom/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	WS     *handler.WSHandler
	Room   *handler.RoomHandler
	Lobby  *handler.LobbyHandler
	System *handler.SystemHandler
}

// Limiters are the rate limiters shared by route groups.
type Limiters struct {
	API *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiters *Limiters,
	gatherer prometheus.Gatherer,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.Brotli())

	if gin.Mode() == gin.DebugMode {
		pprof.Register(router)
	}

	// ─── Operations ────────────────────────────────────────────────────
	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// ─── 1. Public Group (Rate Limited) ────────────────────────────────
	publicAPI := router.Group("/api/v1")
	if limiters != nil && limiters.API != nil {
		publicAPI.Use(limiters.API.Middleware())
	}
	{
		publicAPI.GET("/lobby/stream", handlers.Lobby.Stream)

		rooms := publicAPI.Group("/rooms", middleware.NoStore())
		rooms.GET("/:code", handlers.Room.GetRoom)
		rooms.GET("/:code/leaderboard", handlers.Room.GetLeaderboard)
	}

	// ─── 2. Host Group (JWT + Role) ────────────────────────────────────
	hostAPI := publicAPI.Group("/host")
	hostAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequireRole(service.RoleHost),
	)
	{
		hostAPI.POST("/rooms/:code/force-start", handlers.Room.ForceStart)
		hostAPI.POST("/rooms/:code/refresh-cache", handlers.Room.RefreshCache)
		hostAPI.POST("/rooms/:code/end", handlers.Room.EndGame)
	}

	// ─── 3. WebSocket Group (Query Token) ──────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/play", handlers.WS.Play)
	}

	return router
}
