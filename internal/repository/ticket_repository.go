package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, COALESCE(external_id, ''), ticket_number, subject, description, status, priority,
               category, channel, assignee_id, customer_id, ai_processed, ai_classification, ai_response,
               ai_confidence, workflow_scenario, workflow_resolved, workflow_data, tags, created_at, updated_at`

func (r *ticketRepository) Upsert(ctx context.Context, in domain.TicketUpsert) (*domain.Ticket, error) {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	query := `
        INSERT INTO tickets (external_id, ticket_number, subject, description, status, priority, category, channel,
            assignee_id, customer_id, ai_processed, ai_classification, ai_response, ai_confidence, tags)
        VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        ON CONFLICT (ticket_number) DO UPDATE SET
            external_id = COALESCE(tickets.external_id, EXCLUDED.external_id),
            status = EXCLUDED.status,
            assignee_id = COALESCE(EXCLUDED.assignee_id, tickets.assignee_id),
            ai_processed = tickets.ai_processed OR EXCLUDED.ai_processed,
            ai_classification = COALESCE(EXCLUDED.ai_classification, tickets.ai_classification),
            ai_response = COALESCE(EXCLUDED.ai_response, tickets.ai_response),
            ai_confidence = COALESCE(EXCLUDED.ai_confidence, tickets.ai_confidence),
            updated_at = NOW()
        RETURNING ` + ticketColumns
	row := r.pool.QueryRow(ctx, query,
		in.ExternalID,
		in.TicketNumber,
		in.Subject,
		in.Description,
		in.Status,
		in.Priority,
		in.Category,
		in.Channel,
		in.AssigneeID,
		in.CustomerID,
		in.AIProcessed,
		in.AIClassification,
		in.AIResponse,
		in.AIConfidence,
		tags,
	)
	return scanTicket(row)
}

func (r *ticketRepository) Sync(ctx context.Context, in domain.TicketSync) (*domain.Ticket, error) {
	query := `
        INSERT INTO tickets (external_id, ticket_number, subject, description, status, priority, category, channel,
            customer_id, tags, created_at)
        VALUES (NULLIF($1, ''), $2, $3, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))
        ON CONFLICT (ticket_number) DO UPDATE SET
            subject = EXCLUDED.subject,
            status = EXCLUDED.status,
            priority = EXCLUDED.priority,
            external_id = COALESCE(EXCLUDED.external_id, tickets.external_id),
            updated_at = NOW()
        RETURNING ` + ticketColumns
	row := r.pool.QueryRow(ctx, query,
		in.ExternalID,
		in.TicketNumber,
		in.Subject,
		in.Status,
		in.Priority,
		in.Category,
		in.Channel,
		in.CustomerID,
		syncTags(in.Channel),
		nullableTime(in.CreatedAt),
	)
	return scanTicket(row)
}

func (r *ticketRepository) UpdateWorkflow(ctx context.Context, in domain.WorkflowUpdate) error {
	const query = `
        UPDATE tickets SET workflow_scenario=$1, workflow_resolved=$2, workflow_data=$3,
            ai_processed=TRUE, updated_at=NOW()
        WHERE ticket_number=$4`
	cmd, err := r.pool.Exec(ctx, query, in.Scenario, in.Resolved, workflowData(in), in.TicketNumber)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, number))
}

func (r *ticketRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE external_id=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, externalID))
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" WHERE status=$%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", listLimit(filter.Limit))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(ticketDest(&ticket)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketDest(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func ticketDest(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.ExternalID,
		&ticket.TicketNumber,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.Channel,
		&ticket.AssigneeID,
		&ticket.CustomerID,
		&ticket.AIProcessed,
		&ticket.AIClassification,
		&ticket.AIResponse,
		&ticket.AIConfidence,
		&ticket.WorkflowScenario,
		&ticket.WorkflowResolved,
		&ticket.WorkflowData,
		&ticket.Tags,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	}
}
