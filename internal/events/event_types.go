package events

import (
	"time"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketProcessed EventType = "ticket_processed"
	EventTicketEscalated EventType = "ticket_escalated"
	EventTicketAssigned  EventType = "ticket_assigned"
	EventTicketsSynced   EventType = "tickets_synced"
)

// AllEventTypes lists every type the pipeline emits.
var AllEventTypes = []EventType{
	EventTicketProcessed,
	EventTicketEscalated,
	EventTicketAssigned,
	EventTicketsSynced,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	TicketID     string    `json:"ticket_id,omitempty"`
	TicketNumber string    `json:"ticket_number,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload"`
}

// TicketProcessedPayload summarises a finished pipeline run.
type TicketProcessedPayload struct {
	Status     domain.ProcessingStatus `json:"status"`
	Branch     string                  `json:"branch,omitempty"`
	Category   domain.TicketCategory   `json:"category"`
	Confidence float64                 `json:"confidence"`
	DurationMS int64                   `json:"duration_ms"`
	FailedStep domain.StepName         `json:"failed_step,omitempty"`
}

// TicketEscalatedPayload describes a hand-off to humans or the tracker.
type TicketEscalatedPayload struct {
	Reason     string   `json:"reason"`
	Signals    []string `json:"signals,omitempty"`
	TrackerKey string   `json:"tracker_key,omitempty"`
}

// TicketAssignedPayload names the agent that took the ticket.
type TicketAssignedPayload struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

// TicketsSyncedPayload carries sync statistics.
type TicketsSyncedPayload struct {
	Total  int  `json:"total"`
	Synced int  `json:"synced"`
	Failed int  `json:"failed"`
	DryRun bool `json:"dry_run"`
}
