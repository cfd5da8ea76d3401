package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/anon-community/config"
	_ "github.com/d60-Lab/anon-community/docs"
	"github.com/d60-Lab/anon-community/internal/api/handler"
	"github.com/d60-Lab/anon-community/internal/api/middleware"
	"github.com/d60-Lab/anon-community/pkg/metrics"
)

// NewRouter 组装中间件与路由
func NewRouter(cfg *config.Config, h *handler.Handler) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.Mode)
	if err := handler.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Sentry(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(),
		gzip.Gzip(gzip.DefaultCompression),
	)
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if cfg.Server.Mode != gin.ReleaseMode {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret), middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	{
		follows := v1.Group("/follows")
		follows.POST("", h.Follow)
		follows.GET("", h.List)
		follows.GET("/stats", h.Stats)
		follows.GET("/chat-partners", h.ChatPartners)
		follows.POST("/check-chat-eligibility", h.CheckChatEligibility)
		follows.DELETE("/:followingId", h.Unfollow)
		follows.PATCH("/:followId/settings", h.UpdateSettings)

		v1.GET("/users/me", h.Me)
	}
	return r, nil
}
