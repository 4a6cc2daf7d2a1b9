package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/visitor-identity/internal/events"
	"github.com/spec-kit/visitor-identity/internal/observability"
)

// AuditService records session lifecycle events in the log and metrics.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllTypes {
		a.dispatcher.Subscribe(eventType, a.handle)
	}
}

func (a *AuditService) handle(_ context.Context, event events.Event) error {
	a.metrics.RecordSessionEvent(string(event.Type))

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("actor_id", event.ActorID),
		zap.Time("at", event.Timestamp),
	}
	switch payload := event.Payload.(type) {
	case events.TargetPayload:
		fields = append(fields, zap.String("target_id", payload.TargetID), zap.String("target_name", payload.TargetName))
	case events.ProfilePayload:
		fields = append(fields, zap.Strings("fields", payload.Fields))
	}

	switch event.Type {
	case events.EventOwnerGranted, events.EventUserDeleted:
		a.logger.Warn("privileged session action", fields...)
	default:
		a.logger.Info("session event", fields...)
	}
	return nil
}
