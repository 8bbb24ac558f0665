package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gate/internal/events"
)

// AuditService writes token lifecycle events to the audit log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTokenIssued, a.handleTokenIssued)
	a.dispatcher.Subscribe(events.EventTokenRevoked, a.handleTokenRevoked)
	a.dispatcher.Subscribe(events.EventTokensPurged, a.handleTokensPurged)
	a.dispatcher.Subscribe(events.EventRegistryInconsistency, a.handleRegistryInconsistency)
}

func (a *AuditService) handleTokenIssued(_ context.Context, event events.Event) error {
	a.logger.Info("TokenIssued", eventFields(event)...)
	return nil
}

func (a *AuditService) handleTokenRevoked(_ context.Context, event events.Event) error {
	a.logger.Info("TokenRevoked", eventFields(event)...)
	return nil
}

func (a *AuditService) handleTokensPurged(_ context.Context, event events.Event) error {
	a.logger.Info("TokensPurged", eventFields(event)...)
	return nil
}

func (a *AuditService) handleRegistryInconsistency(_ context.Context, event events.Event) error {
	a.logger.Warn("RegistryInconsistency", eventFields(event)...)
	return nil
}

func eventFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("subject", event.Subject),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("payload", event.Payload),
	}
}
