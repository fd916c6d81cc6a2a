package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

type processingRunRepository struct {
	pool *pgxpool.Pool
}

// NewProcessingRunRepository builds the Postgres run history.
func NewProcessingRunRepository(pool *pgxpool.Pool) ProcessingRunRepository {
	return &processingRunRepository{pool: pool}
}

func (r *processingRunRepository) Create(ctx context.Context, run *domain.ProcessingRun) error {
	const query = `
        INSERT INTO processing_runs (ticket_number, ticket_id, branch, status, duration_ms, timeline, error)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	timeline, failure, err := encodeRun(run)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, query,
		run.TicketNumber,
		run.TicketID,
		run.Branch,
		run.Status,
		run.DurationMS,
		timeline,
		failure,
	).Scan(&run.ID, &run.CreatedAt)
}

func (r *processingRunRepository) ListByTicket(ctx context.Context, ticketNumber string, limit int) ([]domain.ProcessingRun, error) {
	const query = `
        SELECT id, ticket_number, ticket_id, branch, status, duration_ms, timeline, error, created_at
        FROM processing_runs WHERE ticket_number=$1
        ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, ticketNumber, listLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []domain.ProcessingRun{}
	for rows.Next() {
		var (
			run      domain.ProcessingRun
			timeline []byte
			failure  []byte
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
		if err := decodeRun(&run, timeline, failure); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func encodeRun(run *domain.ProcessingRun) (timeline, failure []byte, err error) {
	steps := run.Timeline
	if steps == nil {
		steps = []domain.ProcessingStep{}
	}
	if timeline, err = json.Marshal(steps); err != nil {
		return nil, nil, err
	}
	if run.Error != nil {
		if failure, err = json.Marshal(run.Error); err != nil {
			return nil, nil, err
		}
	}
	return timeline, failure, nil
}

func decodeRun(run *domain.ProcessingRun, timeline, failure []byte) error {
	run.Timeline = []domain.ProcessingStep{}
	if len(timeline) > 0 {
		if err := json.Unmarshal(timeline, &run.Timeline); err != nil {
			return err
		}
	}
	if len(failure) > 0 {
		run.Error = &domain.ProcessingError{}
		if err := json.Unmarshal(failure, run.Error); err != nil {
			return err
		}
	}
	return nil
}
