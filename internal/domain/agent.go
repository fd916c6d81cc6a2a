package domain

import "time"

// Agent models a human support agent on the roster.
type Agent struct {
	ID            string
	Name          string
	Email         string
	Active        bool
	Capacity      int
	ActiveTickets int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasCapacity reports whether the agent can take another ticket.
func (a Agent) HasCapacity() bool {
	return a.Active && a.ActiveTickets < a.Capacity
}
