package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/visitor-identity/internal/domain"
	"github.com/spec-kit/visitor-identity/internal/kvstore"
)

// CurrentUserKey is the store slot holding the restorable session.
const CurrentUserKey = "currentUser"

// SessionRepository persists the secret-free session reference.
type SessionRepository interface {
	// Load returns nil when no session is stored or the slot is unreadable.
	Load(ctx context.Context) (*domain.SessionView, error)
	Save(ctx context.Context, view domain.SessionView) error
	Clear(ctx context.Context) error
}

type sessionRepository struct {
	store  kvstore.Store
	logger *zap.Logger
}

// NewSessionRepository returns a repository over the currentUser slot.
func NewSessionRepository(store kvstore.Store, logger *zap.Logger) SessionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionRepository{store: store, logger: logger}
}

func (r *sessionRepository) Load(ctx context.Context) (*domain.SessionView, error) {
	raw, err := r.store.Get(ctx, CurrentUserKey)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read current user: %w", err)
	}

	var view domain.SessionView
	if err := json.Unmarshal(raw, &view); err != nil || view.ID == "" {
		r.logger.Warn("currentUser slot is malformed; ignoring stored session", zap.Error(err))
		return nil, nil
	}
	return &view, nil
}

func (r *sessionRepository) Save(ctx context.Context, view domain.SessionView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode current user: %w", err)
	}
	if err := r.store.Set(ctx, CurrentUserKey, raw); err != nil {
		return fmt.Errorf("write current user: %w", err)
	}
	return nil
}

func (r *sessionRepository) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, CurrentUserKey); err != nil {
		return fmt.Errorf("clear current user: %w", err)
	}
	return nil
}
