package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"gorm.io/gorm"

	"github.com/princeprakhar/movie-watchlist/internal/api/handlers"
	"github.com/princeprakhar/movie-watchlist/internal/api/middleware"
	"github.com/princeprakhar/movie-watchlist/internal/authz"
	"github.com/princeprakhar/movie-watchlist/internal/config"
	"github.com/princeprakhar/movie-watchlist/internal/services"
	"github.com/princeprakhar/movie-watchlist/internal/validation"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

// Dependencies are the collaborators the route table is built from. Posters
// may be nil; Clock must be the clock ThrottleStore counts with.
type Dependencies struct {
	DB            *gorm.DB
	Config        *config.Config
	Enforcer      *authz.Enforcer
	Auth          *services.AuthService
	ThrottleStore limiter.Store
	Clock         func() time.Time
	Posters       services.PosterUploader
}

func SetupRoutes(router *gin.Engine, deps Dependencies) error {
	cfg := deps.Config
	validation.Register()

	createRate, err := limiter.NewRateFromFormatted(cfg.ReviewCreateRate)
	if err != nil {
		return fmt.Errorf("review create rate: %w", err)
	}
	listRate, err := limiter.NewRateFromFormatted(cfg.ReviewListRate)
	if err != nil {
		return fmt.Errorf("review list rate: %w", err)
	}
	detailRate, err := limiter.NewRateFromFormatted(cfg.ReviewDetailRate)
	if err != nil {
		return fmt.Errorf("review detail rate: %w", err)
	}

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))
	if cfg.RateLimitRPS > 0 {
		router.Use(middleware.RateLimitMiddleware(cfg.RateLimitRPS))
	}
	router.Use(middleware.Authenticate(deps.Auth))

	// Initialize services
	catalogService := services.NewCatalogService(deps.DB, deps.Posters)
	reviewService := services.NewReviewService(deps.DB, deps.Enforcer)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(deps.Auth)
	platformHandler := handlers.NewPlatformHandler(catalogService)
	titleHandler := handlers.NewTitleHandler(catalogService)
	reviewHandler := handlers.NewReviewHandler(reviewService)

	enforcer := deps.Enforcer
	catalogRead := middleware.RequirePermission(enforcer, authz.ObjectCatalog, authz.ActionRead)
	catalogWrite := middleware.RequirePermission(enforcer, authz.ObjectCatalog, authz.ActionWrite)
	reviewRead := middleware.RequirePermission(enforcer, authz.ObjectReview, authz.ActionRead)
	reviewCreate := middleware.RequirePermission(enforcer, authz.ObjectReview, authz.ActionCreate)

	throttleCreate := middleware.Throttle(middleware.ScopeReviewCreate, createRate, deps.ThrottleStore, deps.Clock)
	throttleList := middleware.Throttle(middleware.ScopeReviewList, listRate, deps.ThrottleStore, deps.Clock)
	throttleDetail := middleware.Throttle(middleware.ScopeReviewDetail, detailRate, deps.ThrottleStore, deps.Clock)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Account routes
	accounts := router.Group("/accounts")
	{
		accounts.POST("/register/", authHandler.Register)
		accounts.POST("/login/", authHandler.Login)
		accounts.POST("/logout/", middleware.RequireAuth(), authHandler.Logout)
	}

	watch := router.Group("/watch")

	// Platforms, also served under /stream/
	for _, prefix := range []string{"/platform", "/stream"} {
		platforms := watch.Group(prefix)
		platforms.GET("/", catalogRead, platformHandler.List)
		platforms.POST("/", catalogWrite, platformHandler.Create)
		platforms.GET("/:id/", catalogRead, platformHandler.Get)
		platforms.PUT("/:id/", catalogWrite, platformHandler.Update)
		platforms.DELETE("/:id/", catalogWrite, platformHandler.Delete)
	}

	// Titles
	watch.GET("/list/", catalogRead, titleHandler.List)
	watch.POST("/list/", catalogWrite, titleHandler.Create)
	watch.GET("/filter-movie", catalogRead, titleHandler.Filter)
	watch.GET("/search-movie", catalogRead, titleHandler.Search)
	watch.GET("/:id/", catalogRead, titleHandler.Get)
	watch.PUT("/:id/", catalogWrite, titleHandler.Update)
	watch.DELETE("/:id/", catalogWrite, titleHandler.Delete)
	watch.POST("/:id/poster/", catalogWrite, titleHandler.UploadPoster)

	// Reviews
	watch.POST("/:id/review-create/", reviewCreate, throttleCreate, reviewHandler.Create)
	watch.GET("/:id/review/", reviewRead, throttleList, reviewHandler.List)

	detail := watch.Group("/review-detail/:id", throttleDetail)
	{
		detail.GET("/", reviewRead, reviewHandler.Get)
		detail.PUT("/", middleware.RequireAuth(), reviewHandler.Update)
		detail.PATCH("/", middleware.RequireAuth(), reviewHandler.Update)
		detail.DELETE("/", middleware.RequireAuth(), reviewHandler.Delete)
	}

	logger.Info("Routes initialized successfully")
	return nil
}
