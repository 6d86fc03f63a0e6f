package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
	Health  *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	uploadLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	brotliConfig := middleware.DefaultBrotliConfig
	brotliConfig.Skipper = func(c *gin.Context) bool { return c.Request.URL.Path == "/metrics" }
	router.Use(middleware.BrotliWithConfig(brotliConfig))

	// ─── Operational ───────────────────────────────────────────────────
	router.GET("/health", handlers.Health.Health)
	router.GET("/stats", handlers.Health.Stats)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ─── 1. WebSocket Group (Student JWT + Single Device) ──────────────
	// Browsers cannot set headers on a WebSocket handshake, so the token
	// may also arrive as ?token=.
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/attempts/:test_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 2. Attempt Group (Student JWT + Single Device) ────────────────
	attemptAPI := router.Group("/api/v1/attempts")
	attemptAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		attemptAPI.GET("/:attempt_id", handlers.Attempt.GetAttempt)
		attemptAPI.PUT("/:attempt_id/questions/:index/answer", handlers.Attempt.SetAnswer)
		attemptAPI.POST("/:attempt_id/questions/:index/image",
			uploadLimiter.Middleware(),
			handlers.Attempt.UploadImage,
		)
		attemptAPI.POST("/:attempt_id/submit", handlers.Attempt.Submit)
	}

	return router
}
