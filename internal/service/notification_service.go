package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/events"
)

// NotificationService relays pipeline events to external sinks.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sinks      []events.Sink
}

// NewNotificationService creates the service. Nil sinks are ignored.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, sinks ...events.Sink) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	active := make([]events.Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		sinks:      active,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketProcessed, n.handleTicketProcessed)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.forward)
	n.dispatcher.Subscribe(events.EventTicketsSynced, n.forward)
}

func (n *NotificationService) handleTicketProcessed(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketProcessed", zap.String("ticket_number", event.TicketNumber), zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	n.logger.Warn("TicketEscalated", zap.String("ticket_number", event.TicketNumber), zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

// forward delivers to every sink; a failing sink does not block the rest.
func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	for _, sink := range n.sinks {
		if err := sink.Send(ctx, event); err != nil {
			n.logger.Warn("event delivery failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_number", event.TicketNumber),
				zap.Error(err))
		}
	}
	return nil
}
