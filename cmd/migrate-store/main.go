// Command migrate-store copies the users and currentUser slots from one store
// backend to another. Connection settings for both sides come from the usual
// environment; only the backend names are given as flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/visitor-identity/internal/config"
	"github.com/spec-kit/visitor-identity/internal/kvstore"
	"github.com/spec-kit/visitor-identity/internal/observability"
	"github.com/spec-kit/visitor-identity/internal/persistence"
	"github.com/spec-kit/visitor-identity/internal/repository"
)

func main() {
	from := flag.String("from", "", "source backend (memory, file, redis, postgres, sqlite, mongo)")
	to := flag.String("to", "", "destination backend")
	timeout := flag.Duration("timeout", time.Minute, "overall migration timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	copied, err := run(ctx, *cfg, *from, *to, logger)
	if err != nil {
		logger.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("migration complete", zap.String("from", *from), zap.String("to", *to), zap.Int("slots", copied))
}

func run(ctx context.Context, cfg config.Config, from, to string, logger *zap.Logger) (int, error) {
	if from == "" || to == "" {
		return 0, fmt.Errorf("both -from and -to are required")
	}
	if from == to {
		return 0, fmt.Errorf("source and destination are both %q", from)
	}

	src, closeSrc, err := openBackend(ctx, cfg, from, logger)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer closeSrc()

	dst, closeDst, err := openBackend(ctx, cfg, to, logger)
	if err != nil {
		return 0, fmt.Errorf("open destination: %w", err)
	}
	defer closeDst()

	return kvstore.Migrate(ctx, src, dst, repository.UsersKey, repository.CurrentUserKey)
}

func openBackend(ctx context.Context, cfg config.Config, backend string, logger *zap.Logger) (kvstore.Store, func(), error) {
	cfg.Store.Backend = backend
	if err := cfg.Store.Validate(); err != nil {
		return nil, func() {}, err
	}
	return persistence.OpenStore(ctx, cfg, logger.With(zap.String("side", backend)))
}
