// Package server contains the HTTP handlers for the stream-code API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "streamcode/docs" // swagger docs
	"streamcode/internal/cache"
	"streamcode/internal/config"
	"streamcode/internal/database"
	"streamcode/internal/featureflags"
	"streamcode/internal/middleware"
	"streamcode/internal/models"
	"streamcode/internal/notifications"
	"streamcode/internal/observability"
	"streamcode/internal/repository"
	"streamcode/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	codeRepo       repository.StreamCodeRepository
	registry       *service.StreamCodeService
	notifier       *notifications.Notifier
	featureFlags   *featureflags.Manager
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Redis is optional: without it the resolve cache, rate limits and events are disabled.
	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and optionally
// performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)

	var repo repository.StreamCodeRepository = repository.NewStreamCodeRepository(db)
	if redisClient != nil && flags.Enabled(featureflags.ResolveCache, "") {
		repo = repository.NewCachedStreamCodeRepository(repo, redisClient, cfg.CodeCacheTTL)
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("streamcode-api"),
		codeRepo:       repo,
		featureFlags:   flags,
	}

	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
	}

	// A nil *Notifier must not reach the interface, or Publish would be called on it.
	var events service.EventPublisher
	if server.notifier != nil {
		events = server.notifier
	}
	server.registry = service.NewStreamCodeService(repo, events, cfg.CodeTTL, cfg.CodeMaxAttempts)

	return server, nil
}

// globalRequestsPerMinute bounds every client IP across all routes.
const globalRequestsPerMinute = 100

const defaultAllowedOrigins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"

// SetupMiddleware installs the middleware chain. CORS runs before the limiter
// so throttled browser clients still see CORS headers.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = defaultAllowedOrigins
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		MaxAge:       int((24 * time.Hour).Seconds()),
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        globalRequestsPerMinute,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), "/health") || c.Path() == "/metrics"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				&models.AppError{Code: "RATE_LIMITED", Message: "Too many requests, please try again later."})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)
	api.Get("/", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Stream Code Registry Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	api.Get("/feature-flags", s.GetFeatureFlags)

	// Stream codes
	codes := api.Group("/codes")
	codes.Post("/", middleware.RateLimit(s.redis, middleware.RateLimitConfig{
		Name:     "issue",
		Limit:    s.config.IssueRateLimit,
		Window:   time.Minute,
		Disabled: s.config.Env == "test" || s.config.Env == "development",
	}), s.IssueStreamCode)
	codes.Get("/", s.ResolveStreamCodeQuery)
	codes.Get("/:code", s.ResolveStreamCode)
	codes.Delete("/:code", middleware.AdminTokenRequired(s.config.AdminToken), s.DeactivateStreamCode)

	// Share-link landing page
	app.Get("/preview", s.PreviewStreamCode)
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName:   "Stream Code Registry",
		BodyLimit: 64 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if err := s.startEventSubscriber(ctx); err != nil {
		middleware.Logger.Warn("stream code event subscriber not started", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// startEventSubscriber follows lifecycle events from every replica. Deactivations
// evict the resolve cache entry so replicas running without the cache flag
// cannot leave a stale copy behind.
func (s *Server) startEventSubscriber(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.StartEventSubscriber(ctx, s.handleEvent)
}

func (s *Server) handleEvent(ev notifications.Event) {
	observability.CodeEventsReceived.WithLabelValues(string(ev.Type)).Inc()
	middleware.Logger.Debug("stream code event",
		slog.String("type", string(ev.Type)),
		slog.String("code", ev.Code),
	)
	if ev.Type == notifications.EventDeactivated && s.redis != nil {
		cache.Invalidate(context.Background(), s.redis, cache.StreamCodeKey(ev.Code))
	}
}

// Shutdown stops the event subscriber, drains HTTP connections and closes
// the database and Redis clients. Every step runs; their errors are joined.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	middleware.Logger.Info("server shutdown complete")
	return nil
}
