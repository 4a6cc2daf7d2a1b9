package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/visitor-identity/internal/api/http"
	"github.com/spec-kit/visitor-identity/internal/api/http/handlers"
	"github.com/spec-kit/visitor-identity/internal/auth"
	"github.com/spec-kit/visitor-identity/internal/config"
	"github.com/spec-kit/visitor-identity/internal/events"
	"github.com/spec-kit/visitor-identity/internal/observability"
	"github.com/spec-kit/visitor-identity/internal/persistence"
	"github.com/spec-kit/visitor-identity/internal/repository"
	"github.com/spec-kit/visitor-identity/internal/service"
	"github.com/spec-kit/visitor-identity/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := persistence.OpenStore(ctx, *cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger.Named("audit"), metrics))

	registry := repository.NewUserRegistry(repository.RegistryDependencies{
		Store:  store,
		Logger: logger,
	})
	sessions := service.NewSessionService(service.SessionDependencies{
		UserRepo:    registry,
		SessionRepo: repository.NewSessionRepository(store, logger),
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	if err := sessions.Start(ctx, ownerAccount(cfg.Owner, logger)); err != nil {
		logger.Fatal("failed to start session service", zap.Error(err))
	}

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = uuid.NewString()
		logger.Warn("AUTH_JWT_SECRET not set; using a per-process signing key, tokens will not survive a restart")
	}
	tokens := auth.NewTokenManager(jwtSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  cfg.App.RequestTimeout(),
		WriteTimeout: cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, cfg.Store.Backend, store),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Session:        handlers.NewSessionHandler(sessions, tokens),
		Users:          handlers.NewUsersHandler(sessions),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, sessions),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

// ownerAccount builds the bootstrap owner. Without OWNER_SECRET a one-off
// secret is generated and reported once so the operator can sign in.
func ownerAccount(cfg config.OwnerConfig, logger *zap.Logger) repository.OwnerAccount {
	owner := repository.OwnerAccount{Email: cfg.Email, Name: cfg.Name, Secret: cfg.Secret}
	if owner.Secret == "" {
		owner.Secret = uuid.NewString()
		logger.Warn("OWNER_SECRET not set; generated a one-off owner secret (only applied if the owner account does not exist yet)",
			zap.String("email", owner.Email),
			zap.String("secret", owner.Secret),
		)
	}
	return owner
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
