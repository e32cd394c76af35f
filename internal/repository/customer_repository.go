package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-inbox/internal/domain"
)

// CustomerRepository provides read access to customers. The core never
// mutates customers; their CRUD lives outside this service.
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	FindByIdentity(ctx context.Context, companyID, phone, channel string) (*domain.Customer, error)
}

type customerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository builds the Postgres-backed repository.
func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepository {
	return &customerRepository{pool: pool}
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	const query = `
        SELECT id, company_id, name, phone, channel, created_at
        FROM customers WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *customerRepository) FindByIdentity(ctx context.Context, companyID, phone, channel string) (*domain.Customer, error) {
	const query = `
        SELECT id, company_id, name, phone, channel, created_at
        FROM customers WHERE company_id=$1 AND phone=$2 AND channel=$3`
	return r.fetchSingle(ctx, query, companyID, phone, channel)
}

func (r *customerRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Customer, error) {
	var customer domain.Customer
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&customer.ID,
		&customer.CompanyID,
		&customer.Name,
		&customer.Phone,
		&customer.Channel,
		&customer.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}
