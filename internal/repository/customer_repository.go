package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

type customerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository instantiates the Postgres customer repository.
func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepository {
	return &customerRepository{pool: pool}
}

func (r *customerRepository) Upsert(ctx context.Context, email, name string, lastContact time.Time) (*domain.Customer, error) {
	const query = `
        INSERT INTO customers (email, name, last_contact)
        VALUES ($1, $2, COALESCE($3, NOW()))
        ON CONFLICT (email) DO UPDATE SET
            last_contact = COALESCE($3, NOW()),
            updated_at = NOW()
        RETURNING id, email, name, tier, last_contact, created_at, updated_at`
	var customer domain.Customer
	if err := r.pool.QueryRow(ctx, query, email, name, nullableTime(lastContact)).Scan(
		&customer.ID,
		&customer.Email,
		&customer.Name,
		&customer.Tier,
		&customer.LastContact,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	const query = `
        SELECT id, email, name, tier, last_contact, created_at, updated_at
        FROM customers WHERE id=$1`
	var customer domain.Customer
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&customer.ID,
		&customer.Email,
		&customer.Name,
		&customer.Tier,
		&customer.LastContact,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}
