package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/visitor-identity/internal/config"
	"github.com/spec-kit/visitor-identity/internal/kvstore"
)

// OpenStore builds the configured key/value backend. The returned closer
// releases whatever connection the backend holds and is never nil.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (kvstore.Store, func(), error) {
	var (
		store  kvstore.Store
		closer = func() {}
	)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; state is lost on exit")
		store = kvstore.NewMemStore()

	case config.BackendFile:
		fs, err := kvstore.OpenFileStore(cfg.Store.FilePath, logger)
		if err != nil {
			return nil, closer, err
		}
		store = fs

	case config.BackendSQLite:
		ss, err := kvstore.OpenSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, closer, err
		}
		store = ss
		closer = func() { _ = ss.Close() }

	case config.BackendRedis:
		rd, err := NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, closer, err
		}
		store = kvstore.NewRedisStore(rd.Client)
		closer = rd.Close

	case config.BackendPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, closer, err
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.Pool, logger); err != nil {
				pg.Close()
				return nil, closer, err
			}
		}
		store = kvstore.NewPostgresStore(pg.Pool)
		closer = pg.Close

	case config.BackendMongo:
		mg, err := NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, closer, err
		}
		store = kvstore.NewMongoStore(mg.Collection)
		closer = func() { mg.Close(context.Background()) }

	default:
		return nil, closer, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}

	logger.Info("store opened", zap.String("backend", cfg.Store.Backend), zap.String("namespace", cfg.Store.Namespace))
	return kvstore.WithNamespace(store, cfg.Store.Namespace), closer, nil
}
