package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/vidtube/backend/internal/auth"
	"github.com/anonto42/vidtube/backend/internal/handlers"
	"github.com/anonto42/vidtube/backend/internal/middleware"
	"github.com/anonto42/vidtube/backend/internal/repositories"
	"github.com/anonto42/vidtube/backend/pkg/storage"
)

// ViewService is the set of relational views the handlers read through.
type ViewService interface {
	handlers.ProfileViews
	handlers.LikedVideosView
	handlers.CommentsView
	handlers.SubscriptionViews
}

// Dependencies are the collaborators the route table is built from.
type Dependencies struct {
	Users         repositories.UserRepository
	Videos        repositories.VideoRepository
	Comments      repositories.CommentRepository
	Likes         repositories.LikeRepository
	Subscriptions repositories.SubscriptionRepository
	SessionEvents repositories.SessionEventRepository // nil without an audit database

	Sessions handlers.SessionService
	Tokens   middleware.TokenVerifier
	Hasher   auth.PasswordHasher
	Media    storage.MediaStore
	Views    ViewService
	Health   handlers.Pinger

	Cookies      handlers.CookieConfig
	LoginLimiter middleware.RateLimiter // nil disables rate limiting
	Logger       *slog.Logger
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, d Dependencies) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e.GET("/health", handlers.HealthCheck(d.Health))

	var events handlers.SessionEventLister
	if d.SessionEvents != nil {
		events = d.SessionEvents
	}

	// --- Unprotected routes ---
	var limited []echo.MiddlewareFunc
	if d.LoginLimiter != nil {
		limited = append(limited, middleware.RateLimit(d.LoginLimiter))
	}
	authHandler := handlers.NewAuthHandler(d.Users, d.Sessions, d.Hasher, d.Media, d.Cookies)
	authHandler.RegisterPublicRoutes(e.Group("/api/v1/users"), limited...)

	// --- Protected routes ---
	api := e.Group("/api/v1", middleware.JWTAuthMiddleware(d.Tokens, d.Users))

	users := api.Group("/users")
	authHandler.RegisterSessionRoutes(users)
	handlers.NewUserHandler(d.Users, d.Media, d.Views, events).RegisterProfileRoutes(users)

	handlers.NewVideoHandler(d.Videos, d.Users).RegisterVideoRoutes(api.Group("/videos"))
	handlers.NewLikeHandler(d.Likes, d.Videos, d.Comments, d.Views).RegisterLikeRoutes(api.Group("/likes"))
	handlers.NewCommentHandler(d.Comments, d.Likes, d.Videos, d.Views).RegisterCommentRoutes(api.Group("/comments"))
	handlers.NewSubscriptionHandler(d.Subscriptions, d.Users, d.Views).RegisterSubscriptionRoutes(api.Group("/subscriptions"))

	logger.Info("routes configured", slog.Int("count", len(e.Routes())))
}
