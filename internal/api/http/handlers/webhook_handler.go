package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-pipeline/pkg/util/errorutil"
)

// EventProcessor runs a helpdesk event through the pipeline.
type EventProcessor interface {
	Process(ctx context.Context, event domain.HelpdeskEvent) domain.TicketProcessingResult
}

// WebhookHandler accepts helpdesk deliveries.
type WebhookHandler struct {
	pipeline    EventProcessor
	maxDuration time.Duration
	logger      *zap.Logger
}

// NewWebhookHandler constructs handler. maxDuration bounds each run; zero
// leaves the request context untouched.
func NewWebhookHandler(pipeline EventProcessor, maxDuration time.Duration, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{pipeline: pipeline, maxDuration: maxDuration, logger: logger}
}

// Handle POST /webhooks/helpdesk.
func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	var event domain.HelpdeskEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	event.TicketID = strings.TrimSpace(event.TicketID)
	if event.TicketID == "" {
		return apperrors.NewValidationError("ticketId required", nil)
	}
	if event.EventType != domain.EventTicketAdd && event.EventType != domain.EventTicketThreadAdd {
		return apperrors.NewValidationError("unsupported eventType", map[string]any{"eventType": event.EventType})
	}
	if event.Headers == nil {
		event.Headers = map[string]string{"host": c.Hostname()}
	}

	ctx := c.UserContext()
	if h.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.maxDuration)
		defer cancel()
	}

	result := h.pipeline.Process(ctx, event)
	status := fiber.StatusOK
	if result.Status == domain.ProcessingFailed {
		status = fiber.StatusInternalServerError
	}
	h.logger.Info("webhook processed",
		zap.String("ticket_id", event.TicketID),
		zap.String("ticket_number", result.TicketNumber),
		zap.String("status", string(result.Status)),
		zap.String("branch", result.Branch),
		zap.Int64("duration_ms", result.TotalDuration))
	return c.Status(status).JSON(result)
}
