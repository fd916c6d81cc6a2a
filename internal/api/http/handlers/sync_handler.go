package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-pipeline/internal/api/dto"
	"github.com/spec-kit/helpdesk-pipeline/internal/service"
	apperrors "github.com/spec-kit/helpdesk-pipeline/pkg/util/errorutil"
)

// TicketSyncer mirrors helpdesk tickets into the store.
type TicketSyncer interface {
	Sync(ctx context.Context, limit int, dryRun bool) (service.SyncReport, error)
}

// SyncHandler triggers a helpdesk sync.
type SyncHandler struct {
	syncer TicketSyncer
}

// NewSyncHandler constructs handler.
func NewSyncHandler(syncer TicketSyncer) *SyncHandler {
	return &SyncHandler{syncer: syncer}
}

// Sync GET /api/v1/sync.
func (h *SyncHandler) Sync(c *fiber.Ctx) error {
	query, err := parseSyncQuery(c)
	if err != nil {
		return err
	}
	report, err := h.syncer.Sync(c.UserContext(), query.Limit, query.DryRun)
	if err != nil {
		return apperrors.NewUnavailable("helpdesk", err)
	}
	return c.JSON(fiber.Map{"data": report})
}

func parseSyncQuery(c *fiber.Ctx) (dto.SyncQuery, error) {
	query := dto.SyncQuery{Limit: parseInt(c.Query("limit"), dto.DefaultSyncLimit)}
	if query.Limit > dto.MaxSyncLimit {
		query.Limit = dto.MaxSyncLimit
	}
	if raw := c.Query("dryRun"); raw != "" {
		dryRun, err := strconv.ParseBool(raw)
		if err != nil {
			return query, apperrors.NewValidationError("dryRun must be a boolean", map[string]any{"dryRun": raw})
		}
		query.DryRun = dryRun
	}
	return query, nil
}
