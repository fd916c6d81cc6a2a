package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

// NewSQLiteStore wires every repository to an embedded database handle.
func NewSQLiteStore(db *sql.DB) *Store {
	return &Store{
		Customers:   &sqliteCustomerRepository{db: db},
		Tickets:     &sqliteTicketRepository{db: db},
		Agents:      &sqliteAgentRepository{db: db},
		Assignments: &sqliteAssignmentRepository{db: db},
		Runs:        &sqliteRunRepository{db: db},
	}
}

func now() time.Time {
	return time.Now().UTC()
}

type sqliteCustomerRepository struct {
	db *sql.DB
}

func (r *sqliteCustomerRepository) Upsert(ctx context.Context, email, name string, lastContact time.Time) (*domain.Customer, error) {
	const query = `
        INSERT INTO customers (id, email, name, last_contact, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (email) DO UPDATE SET
            last_contact = excluded.last_contact,
            updated_at = excluded.updated_at`
	ts := now()
	if lastContact.IsZero() {
		lastContact = ts
	}
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), email, name, lastContact.UTC(), ts, ts); err != nil {
		return nil, err
	}
	return scanSQLiteCustomer(r.db.QueryRowContext(ctx, `
        SELECT id, email, name, tier, last_contact, created_at, updated_at
        FROM customers WHERE email=?`, email))
}

func (r *sqliteCustomerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	const query = `
        SELECT id, email, name, tier, last_contact, created_at, updated_at
        FROM customers WHERE id=?`
	return scanSQLiteCustomer(r.db.QueryRowContext(ctx, query, id))
}

func scanSQLiteCustomer(row *sql.Row) (*domain.Customer, error) {
	var customer domain.Customer
	if err := row.Scan(
		&customer.ID,
		&customer.Email,
		&customer.Name,
		&customer.Tier,
		&customer.LastContact,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

type sqliteTicketRepository struct {
	db *sql.DB
}

const sqliteTicketColumns = `id, COALESCE(external_id, ''), ticket_number, subject, description, status, priority,
               category, channel, assignee_id, customer_id, ai_processed, ai_classification, ai_response,
               ai_confidence, workflow_scenario, workflow_resolved, workflow_data, tags, created_at, updated_at`

func (r *sqliteTicketRepository) Upsert(ctx context.Context, in domain.TicketUpsert) (*domain.Ticket, error) {
	tags, err := encodeTags(in.Tags)
	if err != nil {
		return nil, err
	}
	query := `
        INSERT INTO tickets (id, external_id, ticket_number, subject, description, status, priority, category, channel,
            assignee_id, customer_id, ai_processed, ai_classification, ai_response, ai_confidence, tags, created_at, updated_at)
        VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (ticket_number) DO UPDATE SET
            external_id = COALESCE(tickets.external_id, excluded.external_id),
            status = excluded.status,
            assignee_id = COALESCE(excluded.assignee_id, tickets.assignee_id),
            ai_processed = MAX(tickets.ai_processed, excluded.ai_processed),
            ai_classification = COALESCE(excluded.ai_classification, tickets.ai_classification),
            ai_response = COALESCE(excluded.ai_response, tickets.ai_response),
            ai_confidence = COALESCE(excluded.ai_confidence, tickets.ai_confidence),
            updated_at = excluded.updated_at`
	ts := now()
	if _, err := r.db.ExecContext(ctx, query,
		uuid.NewString(),
		in.ExternalID,
		in.TicketNumber,
		in.Subject,
		in.Description,
		string(in.Status),
		string(in.Priority),
		in.Category,
		in.Channel,
		in.AssigneeID,
		in.CustomerID,
		in.AIProcessed,
		in.AIClassification,
		in.AIResponse,
		in.AIConfidence,
		tags,
		ts,
		ts,
	); err != nil {
		return nil, err
	}
	return r.GetByNumber(ctx, in.TicketNumber)
}

func (r *sqliteTicketRepository) Sync(ctx context.Context, in domain.TicketSync) (*domain.Ticket, error) {
	tags, err := encodeTags(syncTags(in.Channel))
	if err != nil {
		return nil, err
	}
	query := `
        INSERT INTO tickets (id, external_id, ticket_number, subject, description, status, priority, category, channel,
            customer_id, tags, created_at, updated_at)
        VALUES (?1, NULLIF(?2, ''), ?3, ?4, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12)
        ON CONFLICT (ticket_number) DO UPDATE SET
            subject = excluded.subject,
            status = excluded.status,
            priority = excluded.priority,
            external_id = COALESCE(excluded.external_id, tickets.external_id),
            updated_at = excluded.updated_at`
	ts := now()
	created := in.CreatedAt.UTC()
	if in.CreatedAt.IsZero() {
		created = ts
	}
	if _, err := r.db.ExecContext(ctx, query,
		uuid.NewString(),
		in.ExternalID,
		in.TicketNumber,
		in.Subject,
		string(in.Status),
		string(in.Priority),
		in.Category,
		in.Channel,
		in.CustomerID,
		tags,
		created,
		ts,
	); err != nil {
		return nil, err
	}
	return r.GetByNumber(ctx, in.TicketNumber)
}

func (r *sqliteTicketRepository) UpdateWorkflow(ctx context.Context, in domain.WorkflowUpdate) error {
	data, err := json.Marshal(workflowData(in))
	if err != nil {
		return fmt.Errorf("encode workflow data: %w", err)
	}
	const query = `
        UPDATE tickets SET workflow_scenario=?, workflow_resolved=?, workflow_data=?,
            ai_processed=1, updated_at=?
        WHERE ticket_number=?`
	res, err := r.db.ExecContext(ctx, query, in.Scenario, in.Resolved, string(data), now(), in.TicketNumber)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteTicketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := `SELECT ` + sqliteTicketColumns + ` FROM tickets WHERE ticket_number=?`
	return scanSQLiteTicket(r.db.QueryRowContext(ctx, query, number))
}

func (r *sqliteTicketRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error) {
	query := `SELECT ` + sqliteTicketColumns + ` FROM tickets WHERE external_id=?`
	return scanSQLiteTicket(r.db.QueryRowContext(ctx, query, externalID))
}

func (r *sqliteTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	query := `SELECT ` + sqliteTicketColumns + ` FROM tickets`
	args := []any{}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += " WHERE status=?"
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", listLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		workflow sql.NullString
		tags     string
	)
	if err := row.Scan(
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
		&workflow,
		&tags,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &ticket.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for ticket %s: %w", ticket.TicketNumber, err)
	}
	if workflow.Valid && workflow.String != "" {
		if err := json.Unmarshal([]byte(workflow.String), &ticket.WorkflowData); err != nil {
			return nil, fmt.Errorf("decode workflow data for ticket %s: %w", ticket.TicketNumber, err)
		}
	}
	return &ticket, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

type sqliteAgentRepository struct {
	db *sql.DB
}

func (r *sqliteAgentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (id, name, email, active, capacity, active_tickets, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	ts := now()
	created := agent.CreatedAt.UTC()
	if agent.CreatedAt.IsZero() {
		created = ts
	}
	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, query, id, agent.Name, agent.Email, agent.Active,
		agent.Capacity, agent.ActiveTickets, created, ts); err != nil {
		return err
	}
	agent.ID, agent.CreatedAt, agent.UpdatedAt = id, created, ts
	return nil
}

func (r *sqliteAgentRepository) ListAvailable(ctx context.Context) ([]domain.Agent, error) {
	const query = `
        SELECT id, name, email, active, capacity, active_tickets, created_at, updated_at
        FROM agents
        WHERE active = 1 AND active_tickets < capacity
        ORDER BY active_tickets ASC, created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
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

func (r *sqliteAgentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	const query = `
        SELECT id, name, email, active, capacity, active_tickets, created_at, updated_at
        FROM agents WHERE id=?`
	var agent domain.Agent
	err := r.db.QueryRowContext(ctx, query, id).Scan(
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (r *sqliteAgentRepository) AssignTicket(ctx context.Context, ticketNumber, agentID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var current sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT assignee_id FROM tickets WHERE ticket_number=?`, ticketNumber).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, err
	case current.Valid && current.String == agentID:
		return true, nil
	case current.Valid:
		return false, nil
	}

	ts := now()
	res, err := tx.ExecContext(ctx, `
        UPDATE agents SET active_tickets = active_tickets + 1, updated_at = ?
        WHERE id=? AND active = 1 AND active_tickets < capacity`, ts, agentID)
	if err != nil {
		return false, err
	}
	if affected, err := res.RowsAffected(); err != nil || affected == 0 {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE tickets SET assignee_id=?, status=?, updated_at=?
        WHERE ticket_number=?`, agentID, string(domain.TicketStatusInProgress), ts, ticketNumber); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

type sqliteAssignmentRepository struct {
	db *sql.DB
}

func (r *sqliteAssignmentRepository) Create(ctx context.Context, assignment *domain.AgentAssignment) error {
	const query = `
        INSERT INTO agent_assignments (id, ticket_id, agent_id, reason, created_at)
        VALUES (?, ?, ?, ?, ?)`
	ts := now()
	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, query, id, assignment.TicketID, assignment.AgentID, assignment.Reason, ts); err != nil {
		return err
	}
	assignment.ID, assignment.CreatedAt = id, ts
	return nil
}

func (r *sqliteAssignmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AgentAssignment, error) {
	const query = `
        SELECT id, ticket_id, agent_id, reason, created_at
        FROM agent_assignments WHERE ticket_id=? ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, ticketID)
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

type sqliteRunRepository struct {
	db *sql.DB
}

func (r *sqliteRunRepository) Create(ctx context.Context, run *domain.ProcessingRun) error {
	const query = `
        INSERT INTO processing_runs (id, ticket_number, ticket_id, branch, status, duration_ms, timeline, error, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	timeline, failure, err := encodeRun(run)
	if err != nil {
		return err
	}
	var failureText *string
	if failure != nil {
		text := string(failure)
		failureText = &text
	}
	ts := now()
	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, query,
		id, run.TicketNumber, run.TicketID, run.Branch, string(run.Status), run.DurationMS,
		string(timeline), failureText, ts,
	); err != nil {
		return err
	}
	run.ID, run.CreatedAt = id, ts
	return nil
}

func (r *sqliteRunRepository) ListByTicket(ctx context.Context, ticketNumber string, limit int) ([]domain.ProcessingRun, error) {
	const query = `
        SELECT id, ticket_number, ticket_id, branch, status, duration_ms, timeline, error, created_at
        FROM processing_runs WHERE ticket_number=?
        ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, ticketNumber, listLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []domain.ProcessingRun{}
	for rows.Next() {
		var (
			run      domain.ProcessingRun
			timeline string
			failure  sql.NullString
		)
		if err := rows.Scan(
			&run.ID,
			&run.TicketNumber,
			&run.TicketID,
			&run.Branch,
			&run.Status,
			&run.DurationMS,
			&timeline,
			&failure,
			&run.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := decodeRun(&run, []byte(timeline), []byte(failure.String)); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
