package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusEscalated  TicketStatus = "ESCALATED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Ticket is the persisted aggregate for a helpdesk request.
type Ticket struct {
	ID               string
	ExternalID       string
	TicketNumber     string
	Subject          string
	Description      string
	Status           TicketStatus
	Priority         TicketPriority
	Category         *string
	Channel          string
	AssigneeID       *string
	CustomerID       string
	AIProcessed      bool
	AIClassification *string
	AIResponse       *string
	AIConfidence     *float64
	WorkflowScenario *string
	WorkflowResolved *bool
	WorkflowData     map[string]any
	Tags             []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TicketUpsert describes an idempotent write keyed by TicketNumber. Create
// fields are only used when no row exists. Status is applied on both paths;
// nil AI and assignee fields leave the stored values untouched.
type TicketUpsert struct {
	TicketNumber string
	ExternalID   string
	CustomerID   string
	Subject      string
	Description  string
	Priority     TicketPriority
	Category     *string
	Channel      string
	Tags         []string

	Status           TicketStatus
	AssigneeID       *string
	AIProcessed      bool
	AIClassification *string
	AIResponse       *string
	AIConfidence     *float64
}

// TicketSync mirrors a helpdesk ticket into the store. Unlike TicketUpsert
// it refreshes subject, status, priority and external id on existing rows.
type TicketSync struct {
	TicketNumber string
	ExternalID   string
	CustomerID   string
	Subject      string
	Status       TicketStatus
	Priority     TicketPriority
	Category     *string
	Channel      string
	CreatedAt    time.Time
}

// WorkflowUpdate records the outcome of an automated scenario on a ticket.
type WorkflowUpdate struct {
	TicketNumber        string
	Scenario            string
	Resolved            bool
	SystemActions       []string
	VerificationResults []string
}

var helpdeskStatuses = map[string]TicketStatus{
	"open":        TicketStatusOpen,
	"on hold":     TicketStatusPending,
	"escalated":   TicketStatusEscalated,
	"closed":      TicketStatusClosed,
	"in progress": TicketStatusInProgress,
}

var helpdeskPriorities = map[string]TicketPriority{
	"low":      TicketPriorityLow,
	"medium":   TicketPriorityMedium,
	"high":     TicketPriorityHigh,
	"critical": TicketPriorityCritical,
}

// MapHelpdeskStatus converts a helpdesk status label. Unknown labels map to OPEN.
func MapHelpdeskStatus(label string) TicketStatus {
	if status, ok := helpdeskStatuses[strings.ToLower(strings.TrimSpace(label))]; ok {
		return status
	}
	return TicketStatusOpen
}

// MapHelpdeskPriority converts a helpdesk priority label. Unknown or empty labels map to MEDIUM.
func MapHelpdeskPriority(label string) TicketPriority {
	if priority, ok := helpdeskPriorities[strings.ToLower(strings.TrimSpace(label))]; ok {
		return priority
	}
	return TicketPriorityMedium
}

// ParseTicketStatus accepts either enum names or helpdesk labels.
func ParseTicketStatus(value string) (TicketStatus, bool) {
	upper := TicketStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch upper {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusPending,
		TicketStatusResolved, TicketStatusClosed, TicketStatusEscalated:
		return upper, true
	}
	if status, ok := helpdeskStatuses[strings.ToLower(strings.TrimSpace(value))]; ok {
		return status, true
	}
	return "", false
}
