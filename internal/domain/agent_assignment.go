package domain

import "time"

// AgentAssignment is an immutable audit entry for a hand-off to a human agent.
type AgentAssignment struct {
	ID        string
	TicketID  string
	AgentID   string
	Reason    string
	CreatedAt time.Time
}
