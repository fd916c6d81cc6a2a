package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("record not found")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	Status *domain.TicketStatus
	Limit  int
}

// CustomerRepository persists customers keyed by email.
type CustomerRepository interface {
	Upsert(ctx context.Context, email, name string, lastContact time.Time) (*domain.Customer, error)
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
}

// TicketRepository persists tickets keyed by ticket number.
type TicketRepository interface {
	Upsert(ctx context.Context, in domain.TicketUpsert) (*domain.Ticket, error)
	Sync(ctx context.Context, in domain.TicketSync) (*domain.Ticket, error)
	UpdateWorkflow(ctx context.Context, in domain.WorkflowUpdate) error
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

// AgentRepository reads the roster and records hand-offs.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	ListAvailable(ctx context.Context) ([]domain.Agent, error)
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	// AssignTicket reserves capacity on the agent and, when the ticket is
	// already stored, points it at the agent. It reports false when the
	// agent is inactive or full, or the ticket belongs to another agent.
	AssignTicket(ctx context.Context, ticketNumber, agentID string) (bool, error)
}

// AgentAssignmentRepository stores the hand-off audit log.
type AgentAssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.AgentAssignment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AgentAssignment, error)
}

// ProcessingRunRepository keeps the timeline of every pipeline run.
type ProcessingRunRepository interface {
	Create(ctx context.Context, run *domain.ProcessingRun) error
	// ListByTicket returns the most recent runs first.
	ListByTicket(ctx context.Context, ticketNumber string, limit int) ([]domain.ProcessingRun, error)
}

// Store groups the repositories backed by one database.
type Store struct {
	Customers   CustomerRepository
	Tickets     TicketRepository
	Agents      AgentRepository
	Assignments AgentAssignmentRepository
	Runs        ProcessingRunRepository
}

const defaultListLimit = 50

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// syncTags is the tag set given to tickets first seen through a sync.
func syncTags(channel string) []string {
	if channel == "" {
		return []string{}
	}
	return []string{channel}
}

func workflowData(in domain.WorkflowUpdate) map[string]any {
	actions := in.SystemActions
	if actions == nil {
		actions = []string{}
	}
	results := in.VerificationResults
	if results == nil {
		results = []string{}
	}
	return map[string]any{
		"systemActions":       actions,
		"verificationResults": results,
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
