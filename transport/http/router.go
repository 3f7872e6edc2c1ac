package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/metrics"
	"github.com/layer-3/stindem/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig carries the optional parts of the router
type RouterConfig struct {
	Logger       *zap.Logger
	Metrics      metrics.Recorder
	Gatherer     prometheus.Gatherer
	SecureCookie bool
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, settlements *service.SettlementService, cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger, cfg.Metrics))

	handlers := NewAuthHandlers(authService, cfg.SecureCookie)
	requireAuth := AuthMiddleware(authService)

	router.GET("/csrf-token", handlers.CSRFToken)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// Auth routes
	auth := router.Group("/auth")
	auth.Use(CSRFMiddleware())
	{
		auth.POST("/request-nonce", handlers.RequestNonce)
		auth.POST("/verify-signature", handlers.VerifySignature)
		auth.POST("/register/email", handlers.RegisterEmail)
		auth.POST("/login/email", handlers.LoginEmail)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
		auth.GET("/me", requireAuth, handlers.Me)
	}

	// Settlement collections
	settlementHandlers := NewSettlementHandlers(settlements)
	ledger := router.Group("/")
	ledger.Use(CSRFMiddleware(), requireAuth)
	for _, kind := range core.SettlementKinds {
		ledger.POST(kind.Collection(), settlementHandlers.Create(kind))
		ledger.GET(kind.Collection(), settlementHandlers.List(kind))
	}

	return router
}
