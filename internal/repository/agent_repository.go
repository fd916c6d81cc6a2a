package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the Postgres agent repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (name, email, active, capacity, active_tickets, created_at)
        VALUES ($1,$2,$3,$4,$5,COALESCE($6,NOW()))
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		agent.Name,
		agent.Email,
		agent.Active,
		agent.Capacity,
		agent.ActiveTickets,
		nullableTime(agent.CreatedAt),
	).Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)
}

// ListAvailable returns active agents with spare capacity, least loaded first.
func (r *agentRepository) ListAvailable(ctx context.Context) ([]domain.Agent, error) {
	const query = `
        SELECT id, name, email, active, capacity, active_tickets, created_at, updated_at
        FROM agents
        WHERE active AND active_tickets < capacity
        ORDER BY active_tickets ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := []domain.Agent{}
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.Email,
			&agent.Active,
			&agent.Capacity,
			&agent.ActiveTickets,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	const query = `
        SELECT id, name, email, active, capacity, active_tickets, created_at, updated_at
        FROM agents WHERE id=$1`
	var agent domain.Agent
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&agent.Active,
		&agent.Capacity,
		&agent.ActiveTickets,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) AssignTicket(ctx context.Context, ticketNumber, agentID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	var current *string
	err = tx.QueryRow(ctx, `SELECT assignee_id FROM tickets WHERE ticket_number=$1 FOR UPDATE`, ticketNumber).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return false, err
	case current != nil && *current == agentID:
		return true, nil
	case current != nil:
		return false, nil
	}

	cmd, err := tx.Exec(ctx, `
        UPDATE agents SET active_tickets = active_tickets + 1, updated_at = NOW()
        WHERE id=$1 AND active AND active_tickets < capacity`, agentID)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
        UPDATE tickets SET assignee_id=$1, status=$2, updated_at=NOW()
        WHERE ticket_number=$3`, agentID, domain.TicketStatusInProgress, ticketNumber); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
