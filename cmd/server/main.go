package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/vidtube/backend/internal/auth"
	"github.com/anonto42/vidtube/backend/internal/handlers"
	"github.com/anonto42/vidtube/backend/internal/logging"
	"github.com/anonto42/vidtube/backend/internal/metrics"
	"github.com/anonto42/vidtube/backend/internal/middleware"
	"github.com/anonto42/vidtube/backend/internal/repositories"
	"github.com/anonto42/vidtube/backend/internal/router"
	"github.com/anonto42/vidtube/backend/internal/validators"
	"github.com/anonto42/vidtube/backend/internal/views"
	"github.com/anonto42/vidtube/backend/pkg/config"
	"github.com/anonto42/vidtube/backend/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	// --- Initialize Repositories ---
	userRepo := repositories.NewMongoUserRepository(db.Database)
	videoRepo := repositories.NewMongoVideoRepository(db.Database)
	commentRepo := repositories.NewMongoCommentRepository(db.Database)
	likeRepo := repositories.NewMongoLikeRepository(db.Database)
	subscriptionRepo := repositories.NewMongoSubscriptionRepository(db.Database)

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	for name, ensure := range map[string]func(context.Context) error{
		repositories.CollectionUsers:         userRepo.EnsureIndexes,
		repositories.CollectionVideos:        videoRepo.EnsureIndexes,
		repositories.CollectionComments:      commentRepo.EnsureIndexes,
		repositories.CollectionLikes:         likeRepo.EnsureIndexes,
		repositories.CollectionSubscriptions: subscriptionRepo.EnsureIndexes,
	} {
		if err := ensure(indexCtx); err != nil {
			cancel()
			return fmt.Errorf("ensure %s indexes: %w", name, err)
		}
	}
	cancel()

	mt := metrics.New()

	media, err := newMediaStore(ctx, cfg)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		AccessTTL:     cfg.AccessTokenExpiry,
		RefreshSecret: cfg.RefreshTokenSecret,
		RefreshTTL:    cfg.RefreshTokenExpiry,
		Issuer:        cfg.TokenIssuer,
	})
	if err != nil {
		return err
	}
	hasher, err := auth.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}

	managerOpts := []auth.Option{auth.WithMetrics(mt), auth.WithLogger(logger)}
	var sessionEvents repositories.SessionEventRepository
	if db.Postgres != nil {
		sessionEvents = repositories.NewPostgresSessionEventRepository(db.Postgres)
		managerOpts = append(managerOpts, auth.WithEventRecorder(sessionEvents))
	}
	sessions := auth.NewManager(userRepo, hasher, tokens, managerOpts...)

	viewService := views.NewService(db.Database,
		views.WithMetrics(mt),
		views.WithLogger(logger),
		views.WithLikedVideosEmptyIsNotFound(cfg.LikedVideosEmptyIsNotFound),
	)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validators.NewValidator()
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(logger)

	config.SetupMiddleware(e, cfg, logger)
	router.SetupRoutes(e, router.Dependencies{
		Users:         userRepo,
		Videos:        videoRepo,
		Comments:      commentRepo,
		Likes:         likeRepo,
		Subscriptions: subscriptionRepo,
		SessionEvents: sessionEvents,
		Sessions:      sessions,
		Tokens:        tokens,
		Hasher:        hasher,
		Media:         media,
		Views:         viewService,
		Health:        db.Mongo,
		Cookies: handlers.CookieConfig{
			Secure:     cfg.CookieSecure,
			AccessTTL:  cfg.AccessTokenExpiry,
			RefreshTTL: cfg.RefreshTokenExpiry,
		},
		LoginLimiter: middleware.NewIPRateLimiter(cfg.LoginRatePerMinute, time.Minute, cfg.LoginRatePerMinute, 10*time.Minute),
		Logger:       logger,
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           mt.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", slog.Any("error", err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", slog.Any("error", err))
	}
	return nil
}

// newMediaStore returns the S3 store when a bucket is configured and an in-memory store
// otherwise.
func newMediaStore(ctx context.Context, cfg *config.Config) (storage.MediaStore, error) {
	if cfg.S3Bucket == "" {
		slog.Warn("S3_BUCKET not set, uploads are kept in memory")
		return storage.NewMemoryStore("http://localhost:" + cfg.Port + "/media/"), nil
	}
	return storage.NewS3Storage(ctx, storage.S3Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
}
