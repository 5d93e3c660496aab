package http

import (
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	keyvault "github.com/layer-3/keyvault"
	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/internal/metrics"
)

// RouterConfig carries the optional pieces of the router
type RouterConfig struct {
	// RateLimit applies to the admin-secret endpoints; empty disables it
	RateLimit    string
	LimiterStore limiter.Store
	Metrics      *metrics.Metrics
	RequestLog   *RequestLog
}

// SetupRouter sets up the Gin router
func SetupRouter(client keyvault.Client, cfg RouterConfig) (*gin.Engine, error) {
	router := gin.Default()

	if cfg.RequestLog == nil {
		cfg.RequestLog = NewRequestLog(DefaultRequestLogSize)
	}
	handlers := NewHandlers(client, cfg.RequestLog)

	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.GinMiddleware())
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	router.GET("/health", handlers.Health)

	api := router.Group("/api")
	api.Use(cfg.RequestLog.Middleware())

	// Public routes, gated by the admin secret or input validation
	public := api.Group("")
	if cfg.RateLimit != "" {
		store := cfg.LimiterStore
		if store == nil {
			var err error
			if store, err = NewLimiterStore(nil); err != nil {
				return nil, err
			}
		}
		limit, err := RateLimit(store, cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		public.Use(limit)
	}
	{
		public.POST("/auth/session", handlers.Session)
		public.POST("/register", handlers.Register)
		public.POST("/generate-api-key", handlers.GenerateAPIKey)
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(AuthMiddleware(client))
	{
		protected.POST("/wallets/create", RequirePermission(core.PermWalletCreate), handlers.CreateWallet)
		protected.POST("/wallets/sign", RequirePermission(core.PermWalletSign), handlers.Sign)
		protected.POST("/wallets/multisend", RequirePermission(core.PermWalletSign), handlers.Multisend)
		protected.GET("/wallets/:id", RequirePermission(core.PermWalletRead), handlers.GetWallet)
		protected.GET("/monitoring", RequirePermission(core.PermMonitoring), handlers.Monitoring)
	}

	return router, nil
}
