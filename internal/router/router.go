// internal/router/router.go
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/freshshare/freshshare-api/internal/config"
	"github.com/freshshare/freshshare-api/internal/events"
	"github.com/freshshare/freshshare-api/internal/handlers"
	"github.com/freshshare/freshshare-api/internal/lock"
	"github.com/freshshare/freshshare-api/internal/metrics"
	"github.com/freshshare/freshshare-api/internal/middleware"
	"github.com/freshshare/freshshare-api/internal/repository"
	"github.com/freshshare/freshshare-api/internal/services"
	"github.com/freshshare/freshshare-api/internal/utils"
)

// Dependencies are the collaborators chosen by the caller from configuration.
type Dependencies struct {
	Repository  repository.Repository
	Locker      lock.Locker
	Publisher   events.Publisher
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
}

func Initialize(cfg *config.Config, deps Dependencies) *gin.Engine {
	// Initialize services
	groupService := services.NewGroupProductService(deps.Repository, deps.Locker, deps.Metrics, cfg)
	marketplaceService := services.NewMarketplaceService(deps.Repository, deps.Locker, deps.Publisher, deps.Metrics, cfg)
	orderService := services.NewOrderService(deps.Repository, marketplaceService)

	// Initialize handlers
	groupHandler := handlers.NewGroupProductHandler(groupService)
	marketplaceHandler := handlers.NewMarketplaceHandler(marketplaceService)
	orderHandler := handlers.NewOrderHandler(orderService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Metrics))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := deps.Repository.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// API v1 routes
	v1 := r.Group("/v1")
	if deps.RateLimiter != nil {
		v1.Use(deps.RateLimiter.Middleware())
	}
	v1.Use(middleware.AuthRequired())
	{
		groups := v1.Group("/groups")
		{
			groups.POST("", groupHandler.CreateGroup)
			groups.POST("/:id/join", groupHandler.JoinGroup)
			groups.GET("/:id/products", groupHandler.ListProducts)
			groups.POST("/:id/products", groupHandler.SuggestProduct)
			groups.PUT("/:id/products/capacity", groupHandler.SetCapacity)
			groups.POST("/:id/products/:productId/vote", groupHandler.Vote)
			groups.PATCH("/:id/products/:productId", groupHandler.SetPinned)
			groups.DELETE("/:id/products/:productId", groupHandler.RemoveProduct)
		}

		marketplace := v1.Group("/marketplace")
		{
			marketplace.POST("", marketplaceHandler.CreateListing)
			marketplace.POST("/:id/pieces", marketplaceHandler.SetPieces)
			marketplace.DELETE("/:id/pieces", marketplaceHandler.CancelPieces)
			marketplace.GET("/:id/pieces/status", marketplaceHandler.PieceStatus)
		}

		orders := v1.Group("/orders")
		{
			orders.POST("/quick", orderHandler.CreateQuickOrder)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.POST("/:id/reorder", orderHandler.Reorder)
		}
	}

	return r
}
