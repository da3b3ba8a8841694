package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/internal/database"
	"github.com/recanthology/engine/internal/handlers"
	"github.com/recanthology/engine/internal/middleware"
	"github.com/recanthology/engine/internal/services"
	"github.com/recanthology/engine/internal/validation"
	"github.com/recanthology/engine/pkg/models"
)

type App struct {
	config     *config.Config
	logger     *logrus.Logger
	db         *database.Database
	services   *services.Services
	handlers   *handlers.Handlers
	validation *middleware.ValidationMiddleware
	router     *gin.Engine

	consumerCancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	svc, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	// Initialize handlers
	app.handlers = handlers.New(app.logger, cfg, svc)

	// Compile embedded request schemas
	schemaValidator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schemas: %w", err)
	}
	app.validation = middleware.NewValidationMiddleware(schemaValidator)

	// Setup router
	app.setupRouter()

	// Catalog ingestion consumer runs for the lifetime of the app.
	consumerCtx, cancel := context.WithCancel(context.Background())
	app.consumerCancel = cancel
	go svc.Ingestion.Start(consumerCtx)

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.consumerCancel != nil {
		a.consumerCancel()
	}

	if a.services.MessageBus != nil {
		if err := a.services.MessageBus.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing message bus")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Metrics(a.services.Metrics))
	router.Use(middleware.Compression())

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")

	// Public routes
	auth := api.Group("/auth")
	{
		auth.POST("/register", a.handlers.Auth.Register)
		auth.POST("/login", a.handlers.Auth.Login)
	}

	books := api.Group("/books")
	{
		books.GET("", a.handlers.Catalog.List(models.KindBook))
		books.GET("/genres", a.handlers.Catalog.Genres(models.KindBook))
		books.GET("/:id", a.handlers.Catalog.Get(models.KindBook))
		books.POST("/filter", a.handlers.Catalog.FilterBooks)
		books.POST("/recommendations",
			a.validation.ValidatePublicRecommendation(),
			a.handlers.Recommendation.Public(models.KindBook))
	}

	media := api.Group("/media")
	{
		media.GET("", a.handlers.Catalog.List(models.KindMedia))
		media.GET("/genres", a.handlers.Catalog.Genres(models.KindMedia))
		media.GET("/:id", a.handlers.Catalog.Get(models.KindMedia))
		media.POST("/filter", a.handlers.Catalog.FilterMedia)
		media.POST("/recommendations",
			a.validation.ValidatePublicRecommendation(),
			a.handlers.Recommendation.Public(models.KindMedia))
	}

	// Private routes
	private := api.Group("")
	private.Use(middleware.Auth(a.services.Auth, a.logger))
	private.Use(middleware.RateLimit(a.services.RateLimit, a.logger))
	{
		private.POST("/auth/logout", a.handlers.Auth.Logout)

		me := private.Group("/users/me")
		{
			me.GET("", a.handlers.User.Me)
			me.GET("/preferences", a.handlers.User.Preferences)
			me.GET("/recommendations/books", a.handlers.Recommendation.Private(models.KindBook))
			me.GET("/recommendations/media", a.handlers.Recommendation.Private(models.KindMedia))
			me.POST("/ratings/books", a.handlers.Rating.Upsert(models.KindBook))
			me.POST("/ratings/media", a.handlers.Rating.Upsert(models.KindMedia))
		}
	}

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(middleware.Auth(a.services.Auth, a.logger))
	admin.Use(middleware.RequireRole("admin", a.logger))
	{
		admin.POST("/books", a.handlers.Catalog.CreateBook)
		admin.POST("/media", a.handlers.Catalog.CreateMedia)
		admin.POST("/books/genres", a.handlers.Catalog.CreateGenre(models.KindBook))
		admin.POST("/media/genres", a.handlers.Catalog.CreateGenre(models.KindMedia))
		admin.POST("/catalog/ingest",
			a.validation.ValidateCatalogIngest(),
			a.handlers.Catalog.Ingest)
	}

	a.router = router
}
