// Package server contains HTTP and WebSocket handlers for the marketplace API.
package server

import (
	"context"
	"errors"
	"strconv"
	"time"

	_ "billboard/docs" // swagger docs
	"billboard/internal/cache"
	"billboard/internal/config"
	"billboard/internal/embedding"
	"billboard/internal/middleware"
	"billboard/internal/models"
	"billboard/internal/notifications"
	"billboard/internal/repository"
	"billboard/internal/service"
	"billboard/internal/storage"
	"billboard/internal/vectorindex"

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

// Deps are the already-initialized collaborators of a Server. Only DB is
// required.
type Deps struct {
	DB    *gorm.DB
	Redis *redis.Client
	// Tasks receives indexing and email work. Nil drops it.
	Tasks      service.TaskEnqueuer
	Embeddings *embedding.Gateway
	Index      *vectorindex.Adapter
	// Uploader stores listing images. Nil disables POST /api/uploads.
	Uploader *storage.Uploader
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo repository.UserRepository
	uploader *storage.Uploader

	notifier   *notifications.Notifier
	hub        *notifications.Hub
	dispatcher *notifications.Dispatcher

	listingService     *service.ListingService
	applicationService *service.ApplicationService
	invitationService  *service.InvitationService
	commentService     *service.CommentService
	similarityService  *service.SimilarityService
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}

	listingRepo := repository.NewListingRepository(deps.DB)
	userRepo := repository.NewUserRepository(deps.DB)
	appRepo := repository.NewApplicationRepository(deps.DB)
	invitationRepo := repository.NewInvitationRepository(deps.DB)
	commentRepo := repository.NewCommentRepository(deps.DB)

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("billboard-api"),
		userRepo:       userRepo,
		uploader:       deps.Uploader,
		notifier:       notifications.NewNotifier(deps.Redis),
		hub:            notifications.NewHub(notifications.NewPresence(deps.Redis)),
	}
	s.dispatcher = notifications.NewDispatcher(s.hub, s.notifier)

	rules := service.RulesFromConfig(cfg)
	s.listingService = service.NewListingService(listingRepo, s.dispatcher, deps.Tasks, rules)
	s.applicationService = service.NewApplicationService(appRepo, listingRepo, userRepo, s.dispatcher, deps.Tasks, rules)
	s.invitationService = service.NewInvitationService(invitationRepo, appRepo, listingRepo, userRepo, s.dispatcher, deps.Tasks, rules)
	s.commentService = service.NewCommentService(commentRepo, listingRepo, s.dispatcher, rules)
	s.similarityService = service.NewSimilarityService(deps.Embeddings, deps.Index, listingRepo)

	return s, nil
}

// Listings exposes the listing service to the background worker.
func (s *Server) Listings() *service.ListingService { return s.listingService }

// Invitations exposes the invitation service to the background worker.
func (s *Server) Invitations() *service.InvitationService { return s.invitationService }

// Similarity exposes the similarity service to the background worker.
func (s *Server) Similarity() *service.SimilarityService { return s.similarityService }

// Hub returns the websocket hub of this server.
func (s *Server) Hub() *notifications.Hub { return s.hub }

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Propagates request and user IDs to the slog context
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || !s.config.IsProduction()
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Billboard API Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Public listing routes. Specific paths come before /:id.
	publicListings := api.Group("/listings")
	publicListings.Get("/", s.GetListings)
	publicListings.Get("/similar", middleware.RateLimit(
		s.redis, 20, time.Minute, "similar"), s.FindSimilarListings)
	publicListings.Get("/:id/similar", s.GetSimilarListings)
	publicListings.Get("/:id/comments", s.GetComments)
	publicListings.Get("/:id", s.GetListing)

	// Registered ahead of the protected group so its middleware never runs
	// for them: the handshake consumes its ticket exactly once.
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	api.Get("/ws", s.WSAuth(), s.WebsocketHandler())

	protected := api.Group("", s.AuthRequired())

	listings := protected.Group("/listings")
	listings.Post("/", middleware.RateLimit(
		s.redis, 10, 10*time.Minute, "create_listing"), s.CreateListing)
	listings.Post("/bulk", middleware.RateLimit(
		s.redis, 2, 10*time.Minute, "bulk_listing"), s.CreateListingsBulk)
	listings.Post("/:id/publish", s.PublishListing)
	listings.Post("/:id/like", s.ToggleLike)
	listings.Post("/:id/applications", s.Apply)
	listings.Get("/:id/applications", s.GetListingApplications)
	listings.Post("/:id/invitations", s.Invite)
	listings.Get("/:id/invitations", s.GetListingInvitations)
	listings.Post("/:id/comments", middleware.RateLimit(
		s.redis, 5, time.Minute, "create_comment"), s.CreateComment)
	listings.Delete("/:id/comments/:commentId", s.DeleteComment)
	listings.Put("/:id", s.UpdateListing)
	listings.Delete("/:id", s.DeleteListing)

	applications := protected.Group("/applications")
	applications.Get("/me", s.GetMyApplications)
	applications.Get("/:id", s.GetApplication)
	applications.Put("/:id/status", s.UpdateApplicationStatus)

	invitations := protected.Group("/invitations")
	invitations.Get("/me", s.GetMyInvitations)
	invitations.Put("/:id/status", s.RespondInvitation)

	protected.Post("/uploads", middleware.RateLimit(
		s.redis, 30, 10*time.Minute, "upload"), s.UploadImage)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: the
// service degrades to local fan-out without it.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	switch {
	case dbStatus == "unhealthy" || redisStatus == "unhealthy":
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	case redisStatus == "unavailable":
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns the bearer-token authentication middleware.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := s.bearerUser(c)
		if err != nil {
			return respondError(c, err)
		}
		s.setUser(c, userID)
		return c.Next()
	}
}

// WSAuth authenticates the websocket handshake. A single-use ticket or a
// bearer token identifies the user; a request carrying neither upgrades as
// an anonymous viewer that can only join listing rooms.
func (s *Server) WSAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ticket := c.Query("ticket"); ticket != "" {
			if s.redis == nil {
				return respondError(c, models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			userIDStr, err := s.redis.GetDel(c.Context(), cache.WSTicketKey(ticket)).Result()
			if err != nil {
				return respondError(c, models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			userID, err := strconv.ParseUint(userIDStr, 10, 32)
			if err != nil || userID == 0 {
				return respondError(c, models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			s.setUser(c, uint(userID))
			return c.Next()
		}

		if c.Get("Authorization") == "" {
			return c.Next()
		}
		userID, err := s.bearerUser(c)
		if err != nil {
			return respondError(c, err)
		}
		s.setUser(c, userID)
		return c.Next()
	}
}

func (s *Server) bearerUser(c *fiber.Ctx) (uint, error) {
	tokenString, ok := middleware.BearerToken(c.Get("Authorization"))
	if !ok {
		return 0, models.NewUnauthorizedError("Authorization required")
	}

	claims, err := middleware.ParseToken(s.config.JWTSecret, tokenString)
	if err != nil {
		return 0, models.NewUnauthorizedError("Invalid or expired token")
	}

	if claims.JTI != "" && s.redis != nil {
		revoked, err := s.redis.Exists(c.Context(), "blacklist:"+claims.JTI).Result()
		if err == nil && revoked > 0 {
			return 0, models.NewUnauthorizedError("Token has been revoked")
		}
	}
	return claims.UserID, nil
}

func (s *Server) setUser(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	c.SetUserContext(middleware.WithUserID(c.UserContext(), userID))
}

// optionalUserID attempts to extract userID from Authorization header but does not enforce it.
func (s *Server) optionalUserID(c *fiber.Ctx) (uint, bool) {
	tokenString, ok := middleware.BearerToken(c.Get("Authorization"))
	if !ok {
		return 0, false
	}
	claims, err := middleware.ParseToken(s.config.JWTSecret, tokenString)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Billboard API",
		BodyLimit: s.bodyLimit(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled request error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func (s *Server) bodyLimit() int {
	limit := 4 * 1024 * 1024
	if s.uploader != nil && int(s.uploader.MaxBytes())+1024*1024 > limit {
		limit = int(s.uploader.MaxBytes()) + 1024*1024
	}
	return limit
}

// Start wires the hub to Redis and listens until the app is shut down.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.NewApp()

	if s.notifier.Enabled() {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			middleware.Logger.Error("failed to start hub wiring", "hub", s.hub.Name(), "error", err)
		}
	}

	middleware.Logger.Info("server starting", "port", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server. The database and Redis clients
// belong to the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	middleware.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
