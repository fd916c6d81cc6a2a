package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/helpdesk"
)

// TicketListQuery captures query filters for the listing endpoint.
type TicketListQuery struct {
	Status *domain.TicketStatus
	Limit  int
}

// TicketSummary is a stored ticket as seen by operators.
type TicketSummary struct {
	ID               string                `json:"id"`
	TicketNumber     string                `json:"ticket_number"`
	ExternalID       string                `json:"external_id,omitempty"`
	Subject          string                `json:"subject"`
	Status           domain.TicketStatus   `json:"status"`
	Priority         domain.TicketPriority `json:"priority"`
	Category         *string               `json:"category"`
	Channel          string                `json:"channel"`
	CustomerID       string                `json:"customer_id"`
	AssigneeID       *string               `json:"assignee_id"`
	AIProcessed      bool                  `json:"ai_processed"`
	AIClassification *string               `json:"ai_classification"`
	AIConfidence     *float64              `json:"ai_confidence"`
	WorkflowScenario *string               `json:"workflow_scenario"`
	WorkflowResolved *bool                 `json:"workflow_resolved"`
	Tags             []string              `json:"tags"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// NewTicketSummary maps a stored ticket.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return TicketSummary{
		ID:               t.ID,
		TicketNumber:     t.TicketNumber,
		ExternalID:       t.ExternalID,
		Subject:          t.Subject,
		Status:           t.Status,
		Priority:         t.Priority,
		Category:         t.Category,
		Channel:          t.Channel,
		CustomerID:       t.CustomerID,
		AssigneeID:       t.AssigneeID,
		AIProcessed:      t.AIProcessed,
		AIClassification: t.AIClassification,
		AIConfidence:     t.AIConfidence,
		WorkflowScenario: t.WorkflowScenario,
		WorkflowResolved: t.WorkflowResolved,
		Tags:             tags,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// ContactResponse describes the requester.
type ContactResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// AssigneeResponse describes the helpdesk owner.
type AssigneeResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ConversationResponse is one entry of the ticket conversation.
type ConversationResponse struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Direction   string    `json:"direction"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	Channel     string    `json:"channel"`
	CreatedTime time.Time `json:"created_time"`
}

// TicketDetailResponse combines the live helpdesk ticket with the stored
// pipeline state when the ticket has been processed.
type TicketDetailResponse struct {
	ID            string                 `json:"id"`
	TicketNumber  string                 `json:"ticket_number"`
	Subject       string                 `json:"subject"`
	Description   string                 `json:"description"`
	Status        string                 `json:"status"`
	Priority      domain.TicketPriority  `json:"priority"`
	Channel       string                 `json:"channel"`
	Department    string                 `json:"department"`
	Category      string                 `json:"category"`
	WebURL        string                 `json:"web_url"`
	Tags          []string               `json:"tags"`
	Contact       ContactResponse        `json:"contact"`
	Assignee      *AssigneeResponse      `json:"assignee"`
	CreatedTime   time.Time              `json:"created_time"`
	ModifiedTime  time.Time              `json:"modified_time"`
	Conversations []ConversationResponse `json:"conversations"`
	Pipeline      *TicketSummary         `json:"pipeline"`
	Runs          []domain.ProcessingRun `json:"runs"`
}

// NewTicketDetail maps a helpdesk ticket and its conversations.
func NewTicketDetail(t *helpdesk.Ticket, conversations []helpdesk.Conversation) TicketDetailResponse {
	resp := TicketDetailResponse{
		ID:            t.ID,
		TicketNumber:  t.TicketNumber,
		Subject:       t.Subject,
		Description:   t.Description,
		Status:        t.Status,
		Priority:      domain.MapHelpdeskPriority(string(t.Priority)),
		Channel:       t.Channel,
		Department:    string(t.Department),
		Category:      string(t.Category),
		WebURL:        t.WebURL,
		Tags:          t.Tags,
		CreatedTime:   t.CreatedTime,
		ModifiedTime:  t.ModifiedTime,
		Conversations: make([]ConversationResponse, 0, len(conversations)),
		Runs:          []domain.ProcessingRun{},
	}
	if resp.Subject == "" {
		resp.Subject = "No subject"
	}
	if resp.Status == "" {
		resp.Status = "Open"
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if resp.ModifiedTime.IsZero() {
		resp.ModifiedTime = resp.CreatedTime
	}
	resp.Contact = ContactResponse{Name: "Unknown", Email: t.Email}
	if c := t.Contact; c != nil {
		resp.Contact = ContactResponse{
			ID:    c.ID,
			Name:  joinName(c.FirstName, c.LastName),
			Email: c.Email,
			Phone: c.Phone,
		}
		if resp.Contact.Phone == "" {
			resp.Contact.Phone = c.Mobile
		}
	}
	if a := t.Assignee; a != nil {
		resp.Assignee = &AssigneeResponse{ID: a.ID, Name: a.Name, Email: a.Email}
	}
	for _, conv := range conversations {
		content := conv.Content
		if content == "" {
			content = conv.Summary
		}
		direction := conv.Direction
		if direction == "" {
			direction = "internal"
		}
		author := conv.Author.Name
		if author == "" {
			author = "Unknown"
		}
		resp.Conversations = append(resp.Conversations, ConversationResponse{
			ID:          conv.ID,
			Type:        conv.Type,
			Direction:   direction,
			Summary:     conv.Summary,
			Content:     content,
			Author:      author,
			Channel:     conv.Channel,
			CreatedTime: conv.CreatedTime,
		})
	}
	return resp
}

func joinName(first, last string) string {
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	default:
		return "Unknown"
	}
}
