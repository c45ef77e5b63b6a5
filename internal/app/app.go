package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	cachehttp "github.com/uniedit/sitecache/internal/adapter/inbound/http/cache"
	"github.com/uniedit/sitecache/internal/domain/cache"
	"github.com/uniedit/sitecache/internal/shared/config"
	"github.com/uniedit/sitecache/internal/utils/metrics"
	"github.com/uniedit/sitecache/internal/utils/middleware"
)

// Application is the interface served by cmd/server.
type Application interface {
	Router() *gin.Engine
	Logger() *zap.Logger
	Stop()
}

var _ Application = (*App)(nil)

// App represents the application.
type App struct {
	config   *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	manager  *cache.Manager
	handler  *cachehttp.Handler
	router   *gin.Engine
}

// NewApp assembles the application and its router.
func NewApp(
	cfg *config.Config,
	log *zap.Logger,
	registry *prometheus.Registry,
	m *metrics.Metrics,
	manager *cache.Manager,
	handler *cachehttp.Handler,
) *App {
	a := &App{
		config:   cfg,
		logger:   log,
		registry: registry,
		metrics:  m,
		manager:  manager,
		handler:  handler,
	}
	a.router = a.setupRouter()
	a.registerRoutes()
	return a
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop releases the cache backend and flushes the logger.
func (a *App) Stop() {
	if err := a.manager.Close(); err != nil {
		a.logger.Error("Failed to close cache manager", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	// Set Gin mode based on environment
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	if a.config.Metrics.Enabled {
		r.Use(middleware.Metrics(a.metrics))
	}
	r.Use(middleware.Logging(a.logger))

	cors := middleware.DefaultCORSConfig()
	if len(a.config.Server.CORSOrigins) > 0 {
		cors.AllowOrigins = a.config.Server.CORSOrigins
	}
	r.Use(middleware.CORS(cors))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if a.config.Metrics.Enabled {
		path := a.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	return r
}

// registerRoutes registers the API routes.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/api/v1")

	site := middleware.Site(middleware.SiteConfig{
		JWTSecret: a.config.Auth.JWTSecret,
		Header:    a.config.Auth.SiteHeader,
	})
	a.handler.RegisterRoutes(v1, site)
}
