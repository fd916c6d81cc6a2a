package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
	"github.com/spec-kit/helpdesk-pipeline/internal/events"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/helpdesk"
	"github.com/spec-kit/helpdesk-pipeline/internal/repository"
)

const defaultSyncLimit = 10

// TicketLister pages through recent helpdesk tickets.
type TicketLister interface {
	ListTickets(ctx context.Context, limit int) (*helpdesk.TicketList, error)
}

// SyncService mirrors recent helpdesk tickets into the local store.
type SyncService struct {
	helpdesk   TicketLister
	customers  repository.CustomerRepository
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// SyncDependencies bundles collaborators.
type SyncDependencies struct {
	Helpdesk     TicketLister
	CustomerRepo repository.CustomerRepository
	TicketRepo   repository.TicketRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// NewSyncService creates the service.
func NewSyncService(deps SyncDependencies) *SyncService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		helpdesk:   deps.Helpdesk,
		customers:  deps.CustomerRepo,
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// SyncStats counts the outcome of one sync.
type SyncStats struct {
	Total  int `json:"total"`
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// SyncItemError describes a ticket that could not be stored.
type SyncItemError struct {
	TicketNumber string `json:"ticketNumber"`
	Error        string `json:"error"`
}

// SyncReport is returned by Sync.
type SyncReport struct {
	DryRun  bool            `json:"dryRun"`
	Stats   SyncStats       `json:"stats"`
	Errors  []SyncItemError `json:"errors"`
	Tickets []SyncedTicket  `json:"tickets"`
}

// SyncedTicket summarises one helpdesk ticket seen by the sync.
type SyncedTicket struct {
	TicketNumber  string              `json:"ticketNumber"`
	Subject       string              `json:"subject"`
	Status        domain.TicketStatus `json:"status"`
	CustomerEmail string              `json:"customerEmail"`
}

// Sync fetches up to limit tickets and upserts each one with its customer.
// Item failures are collected; only the listing call can fail the sync.
// With dryRun nothing is written.
func (s *SyncService) Sync(ctx context.Context, limit int, dryRun bool) (SyncReport, error) {
	if limit <= 0 {
		limit = defaultSyncLimit
	}
	report := SyncReport{DryRun: dryRun, Errors: []SyncItemError{}, Tickets: []SyncedTicket{}}

	list, err := s.helpdesk.ListTickets(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("list helpdesk tickets: %w", err)
	}

	for i := range list.Data {
		ticket := list.Data[i]
		report.Stats.Total++
		report.Tickets = append(report.Tickets, SyncedTicket{
			TicketNumber:  ticket.TicketNumber,
			Subject:       ticket.Subject,
			Status:        domain.MapHelpdeskStatus(ticket.Status),
			CustomerEmail: ticket.CustomerEmail(),
		})
		if dryRun {
			continue
		}
		if err := s.syncOne(ctx, ticket); err != nil {
			report.Stats.Failed++
			report.Errors = append(report.Errors, SyncItemError{TicketNumber: ticket.TicketNumber, Error: err.Error()})
			s.logger.Warn("ticket sync failed", zap.String("ticket_number", ticket.TicketNumber), zap.Error(err))
			continue
		}
		report.Stats.Synced++
	}

	s.logger.Info("helpdesk sync finished",
		zap.Int("total", report.Stats.Total),
		zap.Int("synced", report.Stats.Synced),
		zap.Int("failed", report.Stats.Failed),
		zap.Bool("dry_run", dryRun))
	s.publish(ctx, report)
	return report, nil
}

func (s *SyncService) syncOne(ctx context.Context, ticket helpdesk.Ticket) error {
	if ticket.TicketNumber == "" {
		return errors.New("ticket number missing")
	}
	email := strings.TrimSpace(ticket.CustomerEmail())
	if email == "" {
		return errors.New("customer email missing")
	}
	name := domain.DisplayNameFromEmail(email)
	if ticket.Contact != nil {
		name = firstNonEmpty(ticket.Contact.LastName, ticket.Contact.FirstName, name)
	}
	lastContact := ticket.ModifiedTime
	if lastContact.IsZero() {
		lastContact = time.Now()
	}
	customer, err := s.customers.Upsert(ctx, email, name, lastContact)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}

	var category *string
	if c := string(ticket.Category); c != "" {
		category = &c
	}
	_, err = s.tickets.Sync(ctx, domain.TicketSync{
		TicketNumber: ticket.TicketNumber,
		ExternalID:   ticket.ID,
		CustomerID:   customer.ID,
		Subject:      ticket.Subject,
		Status:       domain.MapHelpdeskStatus(ticket.Status),
		Priority:     domain.MapHelpdeskPriority(string(ticket.Priority)),
		Category:     category,
		Channel:      ticket.Channel,
		CreatedAt:    ticket.CreatedTime,
	})
	if err != nil {
		return fmt.Errorf("sync ticket: %w", err)
	}
	return nil
}

func (s *SyncService) publish(ctx context.Context, report SyncReport) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketsSynced,
		Timestamp: time.Now(),
		Payload: events.TicketsSyncedPayload{
			Total:  report.Stats.Total,
			Synced: report.Stats.Synced,
			Failed: report.Stats.Failed,
			DryRun: report.DryRun,
		},
	})
}
