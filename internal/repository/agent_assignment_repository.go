package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

type agentAssignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentAssignmentRepository instantiates the Postgres assignment log.
func NewAgentAssignmentRepository(pool *pgxpool.Pool) AgentAssignmentRepository {
	return &agentAssignmentRepository{pool: pool}
}

func (r *agentAssignmentRepository) Create(ctx context.Context, assignment *domain.AgentAssignment) error {
	const query = `
        INSERT INTO agent_assignments (ticket_id, agent_id, reason)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		assignment.TicketID,
		assignment.AgentID,
		assignment.Reason,
	).Scan(&assignment.ID, &assignment.CreatedAt)
}

func (r *agentAssignmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AgentAssignment, error) {
	const query = `
        SELECT id, ticket_id, agent_id, reason, created_at
        FROM agent_assignments WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.AgentAssignment{}
	for rows.Next() {
		var entry domain.AgentAssignment
		if err := rows.Scan(&entry.ID, &entry.TicketID, &entry.AgentID, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// NewPostgresStore wires every repository to one pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Customers:   NewCustomerRepository(pool),
		Tickets:     NewTicketRepository(pool),
		Agents:      NewAgentRepository(pool),
		Assignments: NewAgentAssignmentRepository(pool),
		Runs:        NewProcessingRunRepository(pool),
	}
}
