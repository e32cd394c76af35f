package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-inbox/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist. Both the
// Postgres and in-memory implementations use it so services never see
// driver-specific sentinels.
var ErrNotFound = errors.New("not found")

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByStatus(ctx context.Context, companyID string, status domain.TicketStatus, limit, offset int) ([]domain.Ticket, error)
	FindOpenByCustomer(ctx context.Context, companyID, customerID, channel string) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, company_id, customer_id, area_id, channel, status, priority_level,
               assigned_user_id, summary, created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, company_id, customer_id, area_id, channel, status, priority_level, assigned_user_id, summary, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.CompanyID,
		ticket.CustomerID,
		ticket.AreaID,
		ticket.Channel,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedUserID,
		ticket.Summary,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, priority_level=$2, assigned_user_id=$3, summary=$4,
            closed_at=$5, updated_at=$6
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedUserID,
		ticket.Summary,
		ticket.ClosedAt,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) FindOpenByCustomer(ctx context.Context, companyID, customerID, channel string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE company_id=$1 AND customer_id=$2 AND channel=$3 AND status <> 'CLOSED'
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, companyID, customerID, channel)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.CompanyID,
		&ticket.CustomerID,
		&ticket.AreaID,
		&ticket.Channel,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssignedUserID,
		&ticket.Summary,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByStatus(ctx context.Context, companyID string, status domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE company_id=$1 AND status=$2
        ORDER BY updated_at DESC, id
        LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, companyID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.CompanyID,
			&ticket.CustomerID,
			&ticket.AreaID,
			&ticket.Channel,
			&ticket.Status,
			&ticket.Priority,
			&ticket.AssignedUserID,
			&ticket.Summary,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
