package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/api/dto"
	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/helpdesk"
	"github.com/spec-kit/helpdesk-pipeline/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-pipeline/pkg/util/errorutil"
)

const (
	maxListLimit  = 200
	detailRunsMax = 10
)

// TicketFinder looks up live tickets in the helpdesk.
type TicketFinder interface {
	FindByNumber(ctx context.Context, ticketNumber string) (*helpdesk.Ticket, error)
	GetConversations(ctx context.Context, ticketID string) (*helpdesk.ConversationList, error)
}

// TicketsHandler serves operator ticket endpoints.
type TicketsHandler struct {
	tickets  repository.TicketRepository
	runs     repository.ProcessingRunRepository
	helpdesk TicketFinder
	logger   *zap.Logger
}

// NewTicketsHandler constructs handler. runs may be nil.
func NewTicketsHandler(tickets repository.TicketRepository, runs repository.ProcessingRunRepository, finder TicketFinder, logger *zap.Logger) *TicketsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketsHandler{tickets: tickets, runs: runs, helpdesk: finder, logger: logger}
}

// ListTickets GET /api/v1/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	query, err := parseTicketListQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.List(c.UserContext(), repository.TicketFilter{Status: query.Status, Limit: query.Limit})
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items, "count": len(items)})
}

// GetTicket GET /api/v1/tickets/:ticketNumber.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	number := strings.TrimSpace(c.Params("ticketNumber"))
	if number == "" {
		return apperrors.NewValidationError("ticket number required", nil)
	}
	ctx := c.UserContext()

	ticket, err := h.helpdesk.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, helpdesk.ErrTicketNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_number": number})
		}
		return apperrors.NewUnavailable("helpdesk", err)
	}

	var conversations []helpdesk.Conversation
	if list, err := h.helpdesk.GetConversations(ctx, ticket.ID); err != nil {
		h.logger.Warn("conversation fetch failed", zap.String("ticket_number", number), zap.Error(err))
	} else {
		conversations = list.Data
	}

	detail := dto.NewTicketDetail(ticket, conversations)
	stored, err := h.tickets.GetByNumber(ctx, number)
	switch {
	case err == nil:
		summary := dto.NewTicketSummary(stored)
		detail.Pipeline = &summary
	case !errors.Is(err, repository.ErrNotFound):
		h.logger.Warn("stored ticket lookup failed", zap.String("ticket_number", number), zap.Error(err))
	}
	if h.runs != nil {
		if runs, err := h.runs.ListByTicket(ctx, number, detailRunsMax); err != nil {
			h.logger.Warn("processing runs lookup failed", zap.String("ticket_number", number), zap.Error(err))
		} else {
			detail.Runs = runs
		}
	}
	return c.JSON(fiber.Map{"data": detail})
}

func parseTicketListQuery(c *fiber.Ctx) (dto.TicketListQuery, error) {
	query := dto.TicketListQuery{Limit: parseInt(c.Query("limit"), 50)}
	if query.Limit > maxListLimit {
		query.Limit = maxListLimit
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := domain.ParseTicketStatus(raw)
		if !ok {
			return query, apperrors.NewValidationError("invalid status", map[string]any{"status": raw})
		}
		query.Status = &status
	}
	return query, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
