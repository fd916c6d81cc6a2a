package domain

// HelpdeskEventType enumerates inbound webhook events.
type HelpdeskEventType string

const (
	EventTicketAdd       HelpdeskEventType = "Ticket_Add"
	EventTicketThreadAdd HelpdeskEventType = "Ticket_Thread_Add"
)

// HelpdeskContact is the requester as reported by the helpdesk.
type HelpdeskContact struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// DisplayName prefers the last name, as the helpdesk stores full names there.
func (c *HelpdeskContact) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.LastName != "" {
		return c.LastName
	}
	return c.FirstName
}

// HelpdeskAuthor identifies who wrote a thread.
type HelpdeskAuthor struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Type  string `json:"type,omitempty"`
}

// HelpdeskThread is the first message of a new ticket.
type HelpdeskThread struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
	To      string `json:"to,omitempty"`
	From    string `json:"fromEmailAddress,omitempty"`
}

// HelpdeskPayload is the ticket or thread body of a webhook event.
type HelpdeskPayload struct {
	Subject      string           `json:"subject,omitempty"`
	Content      string           `json:"content,omitempty"`
	FirstThread  *HelpdeskThread  `json:"firstThread,omitempty"`
	Author       *HelpdeskAuthor  `json:"author,omitempty"`
	Contact      *HelpdeskContact `json:"contact,omitempty"`
	Email        string           `json:"email,omitempty"`
	To           string           `json:"to,omitempty"`
	Priority     string           `json:"priority,omitempty"`
	Category     string           `json:"category,omitempty"`
	TicketNumber string           `json:"ticketNumber,omitempty"`
	Channel      string           `json:"channel,omitempty"`
	WebURL       string           `json:"webUrl,omitempty"`
	Status       string           `json:"status,omitempty"`
}

// HelpdeskEvent is a single inbound webhook delivery.
type HelpdeskEvent struct {
	TicketID  string            `json:"ticketId"`
	EventType HelpdeskEventType `json:"eventType"`
	Payload   HelpdeskPayload   `json:"payload"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// IsThread reports whether the event is a reply on an existing ticket.
func (e HelpdeskEvent) IsThread() bool {
	return e.EventType == EventTicketThreadAdd
}
